package loader

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tvpanel/internal/errors"
	"tvpanel/pkg/contracts/domain"
)

// CountRecordsSkipped tallies input rows dropped for parse failures.
const CountRecordsSkipped = "input_records_skipped"

// epoch anchors calendar dates; day numbers count from 1970-01-01.
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Loader reads cohort tables (observation windows, exposure periods,
// outcome events) from CSV files or Excel workbooks. Malformed rows are
// skipped and counted; a missing required column aborts the load.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader. A nil logger falls back to slog.Default.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// headerIndex maps lower-cased trimmed header names to column positions.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// requireColumns verifies that every named column is present.
func requireColumns(idx map[string]int, names ...string) error {
	for _, name := range names {
		if _, ok := idx[name]; !ok {
			return errors.NewParsingError(
				fmt.Sprintf("required column %q not found", name), nil)
		}
	}
	return nil
}

// cell returns the trimmed value at the named column, or "".
func cell(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseDate accepts either an integer day number or a calendar date in
// YYYY-MM-DD form, normalized to days since 1970-01-01.
func parseDate(s string) (domain.Date, error) {
	if s == "" {
		return 0, fmt.Errorf("empty date")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("date %q is neither a day number nor YYYY-MM-DD", s)
	}
	return int64(t.Sub(epoch).Hours() / 24), nil
}

// parseAmount parses an optional numeric field; "" means zero.
func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// windowFromRow parses one observation-window record.
func windowFromRow(row []string, idx map[string]int) (domain.ObservationWindow, error) {
	var w domain.ObservationWindow
	w.SubjectID = cell(row, idx, "subject_id")
	if w.SubjectID == "" {
		return w, fmt.Errorf("missing subject_id")
	}
	var err error
	if w.Entry, err = parseDate(cell(row, idx, "entry")); err != nil {
		return w, fmt.Errorf("entry: %w", err)
	}
	if w.Exit, err = parseDate(cell(row, idx, "exit")); err != nil {
		return w, fmt.Errorf("exit: %w", err)
	}
	return w, nil
}

// periodFromRow parses one exposure-period record.
func periodFromRow(row []string, idx map[string]int) (domain.ExposurePeriod, error) {
	var p domain.ExposurePeriod
	p.SubjectID = cell(row, idx, "subject_id")
	if p.SubjectID == "" {
		return p, fmt.Errorf("missing subject_id")
	}
	var err error
	if p.Start, err = parseDate(cell(row, idx, "start")); err != nil {
		return p, fmt.Errorf("start: %w", err)
	}
	if p.Stop, err = parseDate(cell(row, idx, "stop")); err != nil {
		return p, fmt.Errorf("stop: %w", err)
	}
	p.Category = cell(row, idx, "category")
	if p.Number, err = parseAmount(cell(row, idx, "amount")); err != nil {
		return p, fmt.Errorf("amount: %w", err)
	}
	return p, nil
}

// eventFromRow parses one outcome-event record.
func eventFromRow(row []string, idx map[string]int) (domain.Event, error) {
	var e domain.Event
	e.SubjectID = cell(row, idx, "subject_id")
	if e.SubjectID == "" {
		return e, fmt.Errorf("missing subject_id")
	}
	var err error
	if e.Date, err = parseDate(cell(row, idx, "date")); err != nil {
		return e, fmt.Errorf("date: %w", err)
	}
	e.Kind = cell(row, idx, "kind")
	return e, nil
}
