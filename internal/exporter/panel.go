package exporter

import (
	"fmt"

	"tvpanel/pkg/contracts/domain"
)

// PanelOptions configures panel export.
type PanelOptions struct {
	// NumericColumns names non-continuous columns whose values are
	// numbers rather than categories (generated elapsed-time and
	// cumulative-duration variables).
	NumericColumns []string
}

// WritePanel streams a panel to a CSV file. The header is subject_id,
// start, stop followed by the covariate columns; continuous columns
// carry a ":num" suffix so a re-imported panel keeps its proration
// semantics.
func (w *CSVWriter) WritePanel(filePath string, panel *domain.Panel, opts PanelOptions) error {
	numeric := make(map[string]bool, len(opts.NumericColumns))
	for _, name := range opts.NumericColumns {
		numeric[name] = true
	}

	headers := []string{"subject_id", "start", "stop"}
	for _, col := range panel.Columns {
		name := col.Name
		if col.Continuous {
			name += ":num"
		}
		headers = append(headers, name)
	}

	stream, err := w.CreateStreamWriter(filePath, headers)
	if err != nil {
		return err
	}

	for _, iv := range panel.Intervals {
		record := []string{iv.SubjectID, formatInt(iv.Start), formatInt(iv.Stop)}
		for ci, col := range panel.Columns {
			record = append(record, formatValue(iv, ci, col, numeric))
		}
		if err := stream.WriteRecord(record); err != nil {
			stream.Close()
			return fmt.Errorf("failed to write interval row: %w", err)
		}
	}

	return stream.Close()
}

// formatValue renders one covariate cell. Not-applicable renders empty.
func formatValue(iv domain.Interval, ci int, col domain.Column, numeric map[string]bool) string {
	if ci >= len(iv.Values) {
		return ""
	}
	v := iv.Values[ci]
	switch {
	case v.Missing:
		return ""
	case col.Continuous || numeric[col.Name]:
		return formatNumber(v.Number)
	default:
		return v.Category
	}
}
