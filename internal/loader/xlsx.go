package loader

import (
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"tvpanel/internal/diagnostics"
	"tvpanel/internal/errors"
	"tvpanel/pkg/contracts/domain"
)

// WindowsFromXLSX loads observation windows from a workbook sheet. An
// empty sheet name selects the sheet whose header carries the required
// columns.
func (l *Loader) WindowsFromXLSX(path, sheet string) ([]domain.ObservationWindow, *diagnostics.Report, error) {
	report := diagnostics.NewReport("loader")
	var out []domain.ObservationWindow
	err := l.readXLSX(path, sheet, report, []string{"subject_id", "entry", "exit"},
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

// PeriodsFromXLSX loads exposure periods from a workbook sheet.
func (l *Loader) PeriodsFromXLSX(path, sheet string) ([]domain.ExposurePeriod, *diagnostics.Report, error) {
	report := diagnostics.NewReport("loader")
	var out []domain.ExposurePeriod
	err := l.readXLSX(path, sheet, report, []string{"subject_id", "start", "stop", "category"},
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

// EventsFromXLSX loads outcome events from a workbook sheet.
func (l *Loader) EventsFromXLSX(path, sheet string) ([]domain.Event, *diagnostics.Report, error) {
	report := diagnostics.NewReport("loader")
	var out []domain.Event
	err := l.readXLSX(path, sheet, report, []string{"subject_id", "date", "kind"},
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

// readXLSX iterates the rows of one workbook sheet with the same
// skip-and-count semantics as the CSV reader.
func (l *Loader) readXLSX(path, sheet string, report *diagnostics.Report, required []string, parse func(row []string, idx map[string]int) error) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return errors.NewStorageError("failed to open "+path, err)
	}
	defer f.Close()

	rows, sheet, err := l.sheetRows(f, sheet, required)
	if err != nil {
		return err
	}
	l.logger.Debug("reading workbook sheet",
		slog.String("file", path),
		slog.String("sheet", sheet),
		slog.Int("rows", len(rows)))

	idx := headerIndex(rows[0])
	for line, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		if parseErr := parse(row, idx); parseErr != nil {
			report.Add(CountRecordsSkipped, 1)
			l.logger.Warn("skipping malformed record",
				slog.String("file", path),
				slog.Int("line", line+2),
				slog.String("reason", parseErr.Error()))
		}
	}
	return nil
}

// sheetRows resolves the sheet to read. A named sheet must exist and
// carry the required header; otherwise the sheets are probed in order
// for one whose first row matches.
func (l *Loader) sheetRows(f *excelize.File, sheet string, required []string) ([][]string, string, error) {
	if sheet != "" {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, "", errors.NewParsingError("failed to read sheet "+sheet, err)
		}
		if len(rows) == 0 || requireColumns(headerIndex(rows[0]), required...) != nil {
			return nil, "", errors.NewParsingError(
				fmt.Sprintf("sheet %q does not carry columns %v", sheet, required), nil)
		}
		return rows, sheet, nil
	}

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) == 0 {
			continue
		}
		if requireColumns(headerIndex(rows[0]), required...) == nil {
			return rows, name, nil
		}
	}
	return nil, "", errors.NewParsingError(
		fmt.Sprintf("no sheet carries columns %v", required), nil)
}
