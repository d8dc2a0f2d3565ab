package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"tvpanel/internal/diagnostics"
	"tvpanel/internal/errors"
	"tvpanel/pkg/contracts/domain"
)

// Mode controls subject-set reconciliation across input panels.
type Mode string

const (
	// ModeStrictIDs fails the merge when panels disagree on subjects.
	ModeStrictIDs Mode = "strict_ids"
	// ModeLenient proceeds over the union of subjects, treating missing
	// panels as fully not-applicable, with a per-subject warning.
	ModeLenient Mode = "lenient"
)

// Config holds the immutable merge configuration.
type Config struct {
	// Mode selects strict or lenient subject-set handling.
	Mode Mode
	// Renames replaces each panel's column names in the output; one name
	// list per panel, lengths matching the panel's column count.
	Renames [][]string
	// Prefixes prepends a per-panel prefix to the panel's column names.
	// Mutually exclusive with Renames.
	Prefixes []string
	// BatchSize is the number of subjects per parallel batch; zero means
	// a single batch.
	BatchSize int
	// Workers caps concurrent batch workers; zero means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns a strict, single-batch merge configuration.
func DefaultConfig() Config {
	return Config{Mode: ModeStrictIDs}
}

// Merger combines independently built panels into one panel whose
// interval boundaries are the per-subject union of all input boundaries.
// The output spans every sub-interval covered by at least one panel;
// sub-intervals a panel does not cover receive not-applicable values for
// that panel's columns. Continuous columns are prorated by duration when
// a single input interval decomposes into several merged sub-intervals.
// A subject whose contributing panels share no overlapping time at all
// emits zero rows; the not-applicable fill applies only where the panels
// partially overlap.
type Merger struct {
	logger *slog.Logger
	cfg    Config
}

// NewMerger creates a panel merger. A nil logger falls back to
// slog.Default.
func NewMerger(logger *slog.Logger, cfg Config) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeStrictIDs
	}
	return &Merger{logger: logger, cfg: cfg}
}

// Merge validates the inputs and combines the panels. The merge is
// associative and commutative over the union-of-boundaries operation.
func (m *Merger) Merge(ctx context.Context, panels []*domain.Panel) (*domain.Panel, *diagnostics.Report, error) {
	report := diagnostics.NewReport("panel_merger")

	columns, err := m.outputColumns(panels)
	if err != nil {
		return nil, report, err
	}

	subjects, err := m.reconcileSubjects(panels, report)
	if err != nil {
		return nil, report, err
	}

	out := &domain.Panel{Columns: columns}
	perPanel := make([]map[string][]domain.Interval, len(panels))
	for k, p := range panels {
		perPanel[k] = p.BySubject()
	}

	for _, subjectID := range subjects {
		rows := m.mergeSubject(subjectID, panels, perPanel, report)
		out.Intervals = append(out.Intervals, rows...)
	}

	out.Sort()
	m.logger.InfoContext(ctx, "merged panels",
		slog.Int("panel_count", len(panels)),
		slog.Int("subjects", len(subjects)),
		slog.Int("output_intervals", len(out.Intervals)))
	return out, report, nil
}

// outputColumns validates panel count and naming options and assembles
// the combined column declaration in panel order.
func (m *Merger) outputColumns(panels []*domain.Panel) ([]domain.Column, error) {
	if len(panels) < 2 {
		return nil, errors.NewMergeError(errors.CodeInsufficientPanels,
			fmt.Sprintf("merge requires at least 2 panels, got %d", len(panels)))
	}
	if m.cfg.Renames != nil && m.cfg.Prefixes != nil {
		return nil, errors.NewMergeError(errors.CodeConflictingNaming,
			"renames and prefixes are mutually exclusive")
	}
	if m.cfg.Renames != nil && len(m.cfg.Renames) != len(panels) {
		return nil, errors.NewMergeError(errors.CodeColumnCountMismatch,
			fmt.Sprintf("%d rename lists for %d panels", len(m.cfg.Renames), len(panels)))
	}
	if m.cfg.Prefixes != nil && len(m.cfg.Prefixes) != len(panels) {
		return nil, errors.NewMergeError(errors.CodeColumnCountMismatch,
			fmt.Sprintf("%d prefixes for %d panels", len(m.cfg.Prefixes), len(panels)))
	}

	var columns []domain.Column
	seen := make(map[string]struct{})
	for k, p := range panels {
		if m.cfg.Renames != nil && len(m.cfg.Renames[k]) != len(p.Columns) {
			return nil, errors.NewMergeError(errors.CodeColumnCountMismatch,
				fmt.Sprintf("panel %d declares %d columns but %d names were supplied",
					k+1, len(p.Columns), len(m.cfg.Renames[k])))
		}
		for ci, col := range p.Columns {
			name := col.Name
			switch {
			case m.cfg.Renames != nil:
				name = m.cfg.Renames[k][ci]
			case m.cfg.Prefixes != nil:
				name = m.cfg.Prefixes[k] + name
			}
			if _, dup := seen[name]; dup {
				return nil, errors.NewMergeError(errors.CodeConflictingNaming,
					fmt.Sprintf("duplicate output column %q", name))
			}
			seen[name] = struct{}{}
			columns = append(columns, domain.Column{Name: name, Continuous: col.Continuous})
		}
	}
	return columns, nil
}

// reconcileSubjects computes the working subject set according to the
// configured mode.
func (m *Merger) reconcileSubjects(panels []*domain.Panel, report *diagnostics.Report) ([]string, error) {
	sets := make([]map[string]struct{}, len(panels))
	union := make(map[string]struct{})
	for k, p := range panels {
		sets[k] = make(map[string]struct{})
		for _, id := range p.Subjects() {
			sets[k][id] = struct{}{}
			union[id] = struct{}{}
		}
	}

	var mismatched bool
	for id := range union {
		for k := range sets {
			if _, ok := sets[k][id]; !ok {
				mismatched = true
				report.Add(diagnostics.CountSubjectsMissing, 1)
				report.Warnf(id, "subject missing from panel %d; its columns become not applicable", k+1)
			}
		}
	}
	if mismatched && m.cfg.Mode == ModeStrictIDs {
		return nil, errors.NewMergeError(errors.CodeSubjectSetMismatch,
			"subject sets differ across panels")
	}

	subjects := make([]string, 0, len(union))
	for id := range union {
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)
	return subjects, nil
}

// mergeSubject re-partitions one subject's intervals from every panel
// against the union of boundaries.
func (m *Merger) mergeSubject(subjectID string, panels []*domain.Panel, perPanel []map[string][]domain.Interval, report *diagnostics.Report) []domain.Interval {
	inputs := make([][]domain.Interval, len(panels))
	boundarySet := make(map[domain.Date]struct{})
	points := make(map[domain.Date]struct{})
	for k := range panels {
		for _, iv := range perPanel[k][subjectID] {
			if iv.Stop < iv.Start {
				report.Add(diagnostics.CountInvalidPeriods, 1)
				continue
			}
			if iv.Stop == iv.Start {
				points[iv.Start] = struct{}{}
			}
			inputs[k] = append(inputs[k], iv)
			boundarySet[iv.Start] = struct{}{}
			boundarySet[iv.Stop] = struct{}{}
		}
		sort.Slice(inputs[k], func(i, j int) bool {
			return inputs[k][i].Start < inputs[k][j].Start
		})
	}

	boundaries := make([]domain.Date, 0, len(boundarySet))
	for b := range boundarySet {
		boundaries = append(boundaries, b)
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i] < boundaries[j] })

	if contributing(inputs) >= 2 && !anyOverlap(inputs, boundaries, points) {
		report.Add(diagnostics.CountSubjectsDisjoint, 1)
		report.Warnf(subjectID, "panels share no overlapping time, no rows emitted")
		return nil
	}

	var rows []domain.Interval
	for i := 0; i+1 < len(boundaries); i++ {
		lo, hi := boundaries[i], boundaries[i+1]
		if row, covered := m.assemble(subjectID, lo, hi, panels, inputs, report); covered {
			rows = append(rows, row)
		}
	}
	// single-day point intervals survive as valid one-point rows
	for p := range points {
		if row, covered := m.assemble(subjectID, p, p, panels, inputs, report); covered {
			rows = append(rows, row)
		}
	}
	return rows
}

// assemble builds one merged sub-interval [lo, hi), pulling each panel's
// value for the span or not-applicable when the panel does not cover it.
// Returns covered=false when no panel covers the span.
func (m *Merger) assemble(subjectID string, lo, hi domain.Date, panels []*domain.Panel, inputs [][]domain.Interval, report *diagnostics.Report) (domain.Interval, bool) {
	row := domain.Interval{SubjectID: subjectID, Start: lo, Stop: hi}
	covered := false
	naSpans := 0
	for k, p := range panels {
		src := covering(inputs[k], lo, hi)
		if src == nil {
			for range p.Columns {
				row.Values = append(row.Values, domain.NA())
			}
			naSpans++
			continue
		}
		covered = true
		for ci, col := range p.Columns {
			v := domain.NA()
			if ci < len(src.Values) {
				v = src.Values[ci]
			}
			if col.Continuous && !v.Missing && src.Duration() > 0 {
				v = domain.Num(v.Number * float64(hi-lo) / float64(src.Duration()))
			}
			row.Values = append(row.Values, v)
		}
	}
	if covered {
		report.Add(diagnostics.CountIntervalsNA, naSpans)
	}
	return row, covered
}

// contributing counts the panels holding at least one row for the subject.
func contributing(inputs [][]domain.Interval) int {
	n := 0
	for _, ivs := range inputs {
		if len(ivs) > 0 {
			n++
		}
	}
	return n
}

// anyOverlap reports whether any elementary span or point is covered by
// two or more panels.
func anyOverlap(inputs [][]domain.Interval, boundaries []domain.Date, points map[domain.Date]struct{}) bool {
	coveredBy := func(lo, hi domain.Date) int {
		n := 0
		for k := range inputs {
			if covering(inputs[k], lo, hi) != nil {
				n++
			}
		}
		return n
	}
	for i := 0; i+1 < len(boundaries); i++ {
		if coveredBy(boundaries[i], boundaries[i+1]) >= 2 {
			return true
		}
	}
	for p := range points {
		if coveredBy(p, p) >= 2 {
			return true
		}
	}
	return false
}

// covering returns the input interval containing [lo, hi), or nil.
func covering(intervals []domain.Interval, lo, hi domain.Date) *domain.Interval {
	for i := range intervals {
		iv := &intervals[i]
		if lo == hi {
			if (iv.Start == lo && iv.Stop == lo) || (iv.Start <= lo && iv.Stop > lo) {
				return iv
			}
			continue
		}
		if iv.Duration() > 0 && iv.Start <= lo && iv.Stop >= hi {
			return iv
		}
	}
	return nil
}
