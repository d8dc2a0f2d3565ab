package exporter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"tvpanel/internal/diagnostics"
	"tvpanel/pkg/contracts/domain"
)

// WriteWorkbook writes the panel and its diagnostics into one Excel
// workbook: a "Panel" sheet mirroring the CSV layout plus "Counts",
// "Warnings" and "Coverage" sheets for the report.
func (w *CSVWriter) WriteWorkbook(filePath string, panel *domain.Panel, report *diagnostics.Report, opts PanelOptions) error {
	fullPath := w.resolvePath(filePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	numeric := make(map[string]bool, len(opts.NumericColumns))
	for _, name := range opts.NumericColumns {
		numeric[name] = true
	}

	f := excelize.NewFile()
	defer f.Close()

	const panelSheet = "Panel"
	if err := f.SetSheetName(f.GetSheetName(0), panelSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := []interface{}{"subject_id", "start", "stop"}
	for _, col := range panel.Columns {
		name := col.Name
		if col.Continuous {
			name += ":num"
		}
		header = append(header, name)
	}
	if err := f.SetSheetRow(panelSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write panel header: %w", err)
	}

	for i, iv := range panel.Intervals {
		row := []interface{}{iv.SubjectID, iv.Start, iv.Stop}
		for ci, col := range panel.Columns {
			row = append(row, workbookValue(iv, ci, col, numeric))
		}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address panel row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(panelSheet, cellRef, &row); err != nil {
			return fmt.Errorf("failed to write panel row %d: %w", i+2, err)
		}
	}

	if report != nil {
		if err := writeReportSheets(f, report); err != nil {
			return err
		}
	}

	if err := f.SaveAs(fullPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// workbookValue renders one covariate cell, keeping numbers typed.
func workbookValue(iv domain.Interval, ci int, col domain.Column, numeric map[string]bool) interface{} {
	if ci >= len(iv.Values) {
		return nil
	}
	v := iv.Values[ci]
	switch {
	case v.Missing:
		return nil
	case col.Continuous || numeric[col.Name]:
		return v.Number
	default:
		return v.Category
	}
}

func writeReportSheets(f *excelize.File, report *diagnostics.Report) error {
	if _, err := f.NewSheet("Counts"); err != nil {
		return fmt.Errorf("failed to create counts sheet: %w", err)
	}
	if err := f.SetSheetRow("Counts", "A1", &[]interface{}{"counter", "value"}); err != nil {
		return err
	}
	for i, key := range report.CountKeys() {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow("Counts", cellRef, &[]interface{}{key, report.Counts[key]}); err != nil {
			return err
		}
	}

	if len(report.Warnings) > 0 {
		if _, err := f.NewSheet("Warnings"); err != nil {
			return fmt.Errorf("failed to create warnings sheet: %w", err)
		}
		if err := f.SetSheetRow("Warnings", "A1", &[]interface{}{"subject_id", "message"}); err != nil {
			return err
		}
		for i, finding := range report.Warnings {
			cellRef, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow("Warnings", cellRef, &[]interface{}{finding.SubjectID, finding.Message}); err != nil {
				return err
			}
		}
	}

	if len(report.Coverage) > 0 {
		if _, err := f.NewSheet("Coverage"); err != nil {
			return fmt.Errorf("failed to create coverage sheet: %w", err)
		}
		header := []interface{}{"subject_id", "expected_days", "covered_days", "gap_days", "overlap_days", "pct_covered"}
		if err := f.SetSheetRow("Coverage", "A1", &header); err != nil {
			return err
		}
		for i, row := range report.Coverage {
			cellRef, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			values := []interface{}{row.SubjectID, row.ExpectedDays, row.CoveredDays, row.GapDays, row.OverlapDays, row.PctCovered}
			if err := f.SetSheetRow("Coverage", cellRef, &values); err != nil {
				return err
			}
		}
	}

	return nil
}
