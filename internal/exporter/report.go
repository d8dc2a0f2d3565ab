package exporter

import (
	"fmt"

	"tvpanel/internal/diagnostics"
)

// WriteDiagnostics writes a diagnostics report as three CSV files next
// to each other: counts, warnings and per-subject coverage. Empty
// sections are skipped.
func (w *CSVWriter) WriteDiagnostics(prefix string, report *diagnostics.Report) error {
	counts := make([][]string, 0, len(report.Counts))
	for _, key := range report.CountKeys() {
		counts = append(counts, []string{key, fmt.Sprintf("%d", report.Counts[key])})
	}
	if len(counts) > 0 {
		if err := w.WriteSimpleCSV(prefix+"_counts.csv", []string{"counter", "value"}, counts); err != nil {
			return err
		}
	}

	if len(report.Warnings) > 0 {
		records := make([][]string, 0, len(report.Warnings))
		for _, f := range report.Warnings {
			records = append(records, []string{f.SubjectID, f.Message})
		}
		if err := w.WriteSimpleCSV(prefix+"_warnings.csv", []string{"subject_id", "message"}, records); err != nil {
			return err
		}
	}

	if len(report.Coverage) > 0 {
		records := make([][]string, 0, len(report.Coverage))
		for _, row := range report.Coverage {
			records = append(records, []string{
				row.SubjectID,
				formatInt(row.ExpectedDays),
				formatInt(row.CoveredDays),
				formatInt(row.GapDays),
				formatInt(row.OverlapDays),
				formatPct(row.PctCovered),
			})
		}
		if err := w.WriteSimpleCSV(prefix+"_coverage.csv",
			[]string{"subject_id", "expected_days", "covered_days", "gap_days", "overlap_days", "pct_covered"},
			records); err != nil {
			return err
		}
	}

	return nil
}
