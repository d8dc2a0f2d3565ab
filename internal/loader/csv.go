package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"tvpanel/internal/diagnostics"
	"tvpanel/internal/errors"
	"tvpanel/pkg/contracts/domain"
)

// WindowsFromCSV loads observation windows from a CSV file with columns
// subject_id, entry, exit.
func (l *Loader) WindowsFromCSV(path string) ([]domain.ObservationWindow, *diagnostics.Report, error) {
	report := diagnostics.NewReport("loader")
	var out []domain.ObservationWindow
	err := l.readCSV(path, report, []string{"subject_id", "entry", "exit"},
		func(row []string, idx map[string]int) error {
			w, err := windowFromRow(row, idx)
			if err != nil {
				return err
			}
			out = append(out, w)
			return nil
		})
	return out, report, err
}

// PeriodsFromCSV loads exposure periods from a CSV file with columns
// subject_id, start, stop, category and an optional amount column.
func (l *Loader) PeriodsFromCSV(path string) ([]domain.ExposurePeriod, *diagnostics.Report, error) {
	report := diagnostics.NewReport("loader")
	var out []domain.ExposurePeriod
	err := l.readCSV(path, report, []string{"subject_id", "start", "stop", "category"},
		func(row []string, idx map[string]int) error {
			p, err := periodFromRow(row, idx)
			if err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	return out, report, err
}

// EventsFromCSV loads outcome events from a CSV file with columns
// subject_id, date, kind.
func (l *Loader) EventsFromCSV(path string) ([]domain.Event, *diagnostics.Report, error) {
	report := diagnostics.NewReport("loader")
	var out []domain.Event
	err := l.readCSV(path, report, []string{"subject_id", "date", "kind"},
		func(row []string, idx map[string]int) error {
			e, err := eventFromRow(row, idx)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	return out, report, err
}

// PanelFromCSV loads a previously exported panel for use as a merge
// input. Columns named subject_id, start and stop are structural; every
// other column becomes a covariate, continuous when its name carries
// the ":num" suffix written by the exporter.
func (l *Loader) PanelFromCSV(path string) (*domain.Panel, *diagnostics.Report, error) {
	report := diagnostics.NewReport("loader")
	panel := &domain.Panel{}

	var covariates []int
	err := l.readCSVHeader(path, report,
		func(header []string, idx map[string]int) error {
			if err := requireColumns(idx, "subject_id", "start", "stop"); err != nil {
				return err
			}
			for i, h := range header {
				name := strings.TrimSpace(h)
				lower := strings.ToLower(name)
				if lower == "subject_id" || lower == "start" || lower == "stop" {
					continue
				}
				col := domain.Column{Name: name}
				if strings.HasSuffix(name, ":num") {
					col.Name = strings.TrimSuffix(name, ":num")
					col.Continuous = true
				}
				panel.Columns = append(panel.Columns, col)
				covariates = append(covariates, i)
			}
			return nil
		},
		func(row []string, idx map[string]int) error {
			iv := domain.Interval{SubjectID: cell(row, idx, "subject_id")}
			if iv.SubjectID == "" {
				return fmt.Errorf("missing subject_id")
			}
			var err error
			if iv.Start, err = parseDate(cell(row, idx, "start")); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			if iv.Stop, err = parseDate(cell(row, idx, "stop")); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			for ci, pos := range covariates {
				raw := ""
				if pos < len(row) {
					raw = strings.TrimSpace(row[pos])
				}
				switch {
				case raw == "":
					iv.Values = append(iv.Values, domain.NA())
				case panel.Columns[ci].Continuous:
					n, err := parseAmount(raw)
					if err != nil {
						return fmt.Errorf("column %s: %w", panel.Columns[ci].Name, err)
					}
					iv.Values = append(iv.Values, domain.Num(n))
				default:
					iv.Values = append(iv.Values, domain.Cat(raw))
				}
			}
			panel.Intervals = append(panel.Intervals, iv)
			return nil
		})
	if err != nil {
		return nil, report, err
	}
	panel.Sort()
	return panel, report, nil
}

// readCSV streams a CSV file row by row, skipping and counting rows the
// parse callback rejects.
func (l *Loader) readCSV(path string, report *diagnostics.Report, required []string, parse func(row []string, idx map[string]int) error) error {
	return l.readCSVHeader(path, report,
		func(header []string, idx map[string]int) error {
			return requireColumns(idx, required...)
		}, parse)
}

func (l *Loader) readCSVHeader(path string, report *diagnostics.Report, onHeader func(header []string, idx map[string]int) error, parse func(row []string, idx map[string]int) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.NewStorageError("failed to open "+path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return errors.NewParsingError("failed to read header of "+path, err)
	}
	// strip a UTF-8 BOM left by spreadsheet tools
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx := headerIndex(header)
	if err := onHeader(header, idx); err != nil {
		return err
	}

	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.NewParsingError(fmt.Sprintf("failed to read %s", path), err)
		}
		line++
		if parseErr := parse(row, idx); parseErr != nil {
			report.Add(CountRecordsSkipped, 1)
			l.logger.Warn("skipping malformed record",
				slog.String("file", path),
				slog.Int("line", line),
				slog.String("reason", parseErr.Error()))
		}
	}
	return nil
}
