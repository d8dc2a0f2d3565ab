package diagnostics

import (
	"context"
	"log/slog"
	"sort"

	"tvpanel/internal/errors"
	"tvpanel/pkg/contracts/domain"
)

// Checker verifies the engine's interval invariants after a
// transformation step. Violations are advisory warnings by default and
// escalate to FatalInvariantViolation only in strict mode.
type Checker struct {
	logger *slog.Logger
	strict bool
}

// NewChecker creates a checker. A nil logger falls back to slog.Default.
func NewChecker(logger *slog.Logger, strict bool) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{logger: logger, strict: strict}
}

// CheckPersonTime verifies that per-subject person-time is conserved from
// before to after a transformation. Splitting and merging redistribute
// field values across a finer partition; they must never create or
// destroy time. With allowCensoring, a subject whose after-total shrank
// (single event policy) passes.
func (c *Checker) CheckPersonTime(ctx context.Context, before, after *domain.Panel, allowCensoring bool) (*Report, error) {
	report := NewReport("person_time")
	beforeTotals := before.PersonTime()
	afterTotals := after.PersonTime()

	ids := make([]string, 0, len(beforeTotals))
	for id := range beforeTotals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		delta := afterTotals[id] - beforeTotals[id]
		if delta == 0 {
			continue
		}
		if delta < 0 && allowCensoring {
			continue
		}
		if report.Deltas == nil {
			report.Deltas = make(map[string]int64)
		}
		report.Deltas[id] = delta
		report.Warnf(id, "person-time not conserved: delta %d days", delta)
	}

	if len(report.Deltas) > 0 {
		c.logger.WarnContext(ctx, "person-time conservation check failed",
			slog.Int("subjects_affected", len(report.Deltas)))
		if c.strict {
			return report, errors.NewInvariantError("person-time not conserved").
				WithContext("subjects_affected", len(report.Deltas))
		}
	}
	return report, nil
}

// Coverage verifies that every subject's intervals exactly tile the
// observation window [entry, exit): no gaps, no overlaps, nothing outside.
func (c *Checker) Coverage(ctx context.Context, panel *domain.Panel, windows []domain.ObservationWindow) (*Report, error) {
	report := NewReport("coverage")
	bySubject := panel.BySubject()

	violations := 0
	for _, w := range windows {
		row := CoverageRow{SubjectID: w.SubjectID, ExpectedDays: w.Duration()}
		intervals := bySubject[w.SubjectID]
		sort.Slice(intervals, func(i, j int) bool {
			return intervals[i].Start < intervals[j].Start
		})

		cursor := w.Entry
		for _, iv := range intervals {
			if iv.Start < cursor {
				row.OverlapDays += cursor - iv.Start
			} else if iv.Start > cursor {
				row.GapDays += iv.Start - cursor
			}
			row.CoveredDays += iv.Duration()
			if iv.Stop > cursor {
				cursor = iv.Stop
			}
		}
		if cursor < w.Exit {
			row.GapDays += w.Exit - cursor
		}
		if row.ExpectedDays > 0 {
			row.PctCovered = 100 * float64(row.CoveredDays) / float64(row.ExpectedDays)
		}
		report.Coverage = append(report.Coverage, row)

		if row.GapDays > 0 || row.OverlapDays > 0 || row.CoveredDays != row.ExpectedDays {
			violations++
			report.Warnf(w.SubjectID, "coverage violated: %d gap days, %d overlap days, %d/%d days covered",
				row.GapDays, row.OverlapDays, row.CoveredDays, row.ExpectedDays)
		}
	}

	if violations > 0 {
		c.logger.WarnContext(ctx, "coverage check failed",
			slog.Int("subjects_affected", violations),
			slog.Int("subjects_checked", len(windows)))
		if c.strict {
			return report, errors.NewInvariantError("panel does not tile observation windows").
				WithContext("subjects_affected", violations)
		}
	}
	return report, nil
}
