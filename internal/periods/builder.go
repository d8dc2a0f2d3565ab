package periods

import (
	"context"
	"log/slog"
	"sort"

	"tvpanel/internal/diagnostics"
	"tvpanel/internal/errors"
	"tvpanel/pkg/contracts/domain"
)

// OverlapStrategy selects how temporally overlapping raw periods of
// different categories are resolved.
type OverlapStrategy string

const (
	// OverlapLayer gives precedence to the period with the later start
	// date; when it ends, an earlier still-active period resumes.
	OverlapLayer OverlapStrategy = "layer"
	// OverlapPriority resolves by an explicit category priority list.
	OverlapPriority OverlapStrategy = "priority"
)

// WashoutPolicy decides whether a washout extension is itself subject to
// overlap resolution against a later-starting different-category period.
type WashoutPolicy string

const (
	// WashoutYields clips the extension at a later-starting period.
	WashoutYields WashoutPolicy = "yields"
	// WashoutOverrides keeps the extension intact, pushing the later
	// period's onset forward.
	WashoutOverrides WashoutPolicy = "overrides"
)

// BuildConfig holds the immutable per-run configuration of the period
// builder. It is passed into each Build call; there is no process-wide
// state.
type BuildConfig struct {
	// Reference is the category assigned to uncovered observation time.
	Reference string
	// Transform selects the exposure definition applied after merging.
	Transform domain.Transform
	// MergeDays merges consecutive same-category periods separated by a
	// gap of at most this many days, before overlap resolution.
	MergeDays int64
	// GraceDays absorbs post-resolution gaps of at most this many days
	// into the preceding exposure instead of filling them with Reference.
	GraceDays int64
	// Overlap selects the overlap resolution strategy.
	Overlap OverlapStrategy
	// Priority orders categories for OverlapPriority; earlier wins.
	Priority []string
	// Washout controls washout-vs-later-period interaction.
	Washout WashoutPolicy
	// ColumnName names the generated exposure column.
	ColumnName string
	// DoseColumn, when set, emits the raw periods' numeric amounts as an
	// additional continuous (interval-proportional) column of that name.
	DoseColumn string
}

// DefaultBuildConfig returns the builder defaults: layering overlap
// resolution, reference substitution with category "unexposed", no grace.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		Reference:  "unexposed",
		Transform:  domain.Transform{Kind: domain.TransformReference},
		Overlap:    OverlapLayer,
		Washout:    WashoutYields,
		ColumnName: "exposure",
	}
}

// Builder converts raw, possibly overlapping exposure-period records into
// a per-subject sequence of non-overlapping intervals bounded by the
// observation window.
//
// Build is a pure function of its inputs. When two periods share an
// identical start date, the one appearing later in input order wins.
type Builder struct {
	logger *slog.Logger
	cfg    BuildConfig
}

// NewBuilder creates a period builder. A nil logger falls back to
// slog.Default.
func NewBuilder(logger *slog.Logger, cfg BuildConfig) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Reference == "" {
		cfg.Reference = "unexposed"
	}
	if cfg.ColumnName == "" {
		cfg.ColumnName = "exposure"
	}
	if cfg.Overlap == "" {
		cfg.Overlap = OverlapLayer
	}
	if cfg.Washout == "" {
		cfg.Washout = WashoutYields
	}
	return &Builder{logger: logger, cfg: cfg}
}

// Build derives the subject's time-varying exposure panel. Contract
// violations (empty window, malformed transform) abort; per-record
// anomalies are dropped and counted in the returned report.
func (b *Builder) Build(ctx context.Context, window domain.ObservationWindow, raw []domain.ExposurePeriod) (*domain.Panel, *diagnostics.Report, error) {
	report := diagnostics.NewReport("period_builder")

	if window.Empty() {
		return nil, report, errors.NewBuildError(errors.CodeEmptyWindow,
			"observation window is empty").
			WithContext("subject_id", window.SubjectID)
	}
	if err := b.cfg.Transform.Validate(); err != nil {
		return nil, report, errors.NewBuildError(errors.CodeUnknownTransformParam, err.Error())
	}
	if b.cfg.Overlap == OverlapPriority && len(b.cfg.Priority) == 0 {
		return nil, report, errors.NewAppValidationError(
			"priority overlap strategy requires a non-empty priority list")
	}

	segs := b.prepare(ctx, window, raw, report)

	if b.cfg.Transform.Kind == domain.TransformWashout && b.cfg.Washout == WashoutYields {
		segs = extendStops(segs, b.cfg.Transform.Days, window.Exit)
	}

	segs = mergeSameCategory(segs, b.cfg.MergeDays)

	switch b.cfg.Overlap {
	case OverlapPriority:
		segs = resolvePriority(segs, b.cfg.Priority)
	default:
		segs = resolveLayer(segs)
	}

	if b.cfg.Transform.Kind == domain.TransformWashout && b.cfg.Washout == WashoutOverrides {
		segs = overrideWashout(segs, b.cfg.Transform.Days, window.Exit)
	}

	segs = fillGaps(segs, window, b.cfg.Reference, b.cfg.GraceDays)
	segs = coalesce(segs)

	panel := b.applyTransform(window, segs)
	panel.Sort()

	b.logger.DebugContext(ctx, "built exposure panel",
		slog.String("subject_id", window.SubjectID),
		slog.Int("raw_periods", len(raw)),
		slog.Int("intervals", len(panel.Intervals)))

	return panel, report, nil
}

// prepare clips raw periods to the window, applies lag, and drops
// invalid or out-of-window records with diagnostic counts.
func (b *Builder) prepare(ctx context.Context, window domain.ObservationWindow, raw []domain.ExposurePeriod, report *diagnostics.Report) []segment {
	lag := int64(0)
	if b.cfg.Transform.Kind == domain.TransformLag {
		lag = b.cfg.Transform.Days
	}

	segs := make([]segment, 0, len(raw))
	for i, p := range raw {
		if p.SubjectID != window.SubjectID {
			report.Add(diagnostics.CountInvalidPeriods, 1)
			report.Warnf(p.SubjectID, "period belongs to another subject, dropped")
			continue
		}
		if p.Stop <= p.Start {
			report.Add(diagnostics.CountInvalidPeriods, 1)
			continue
		}
		start, stop := p.Start+lag, p.Stop
		if start >= stop {
			report.Add(diagnostics.CountInvalidPeriods, 1)
			continue
		}
		if stop <= window.Entry || start >= window.Exit {
			report.Add(diagnostics.CountPeriodsOutsideWindow, 1)
			continue
		}
		clipped := false
		if start < window.Entry {
			start = window.Entry
			clipped = true
		}
		if stop > window.Exit {
			stop = window.Exit
			clipped = true
		}
		if clipped {
			report.Add(diagnostics.CountPeriodsClipped, 1)
		}
		segs = append(segs, segment{
			start:    start,
			stop:     stop,
			category: p.Category,
			number:   p.Number,
			seq:      i,
		})
	}
	sortSegments(segs)
	return segs
}

// segment is the builder's working representation of one span of
// exposure time.
type segment struct {
	start    int64
	stop     int64
	category string
	number   float64
	seq      int // input order, tie-break for identical starts
}

func (s segment) duration() int64 {
	return s.stop - s.start
}

func sortSegments(segs []segment) {
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].start != segs[j].start {
			return segs[i].start < segs[j].start
		}
		if segs[i].stop != segs[j].stop {
			return segs[i].stop < segs[j].stop
		}
		return segs[i].seq < segs[j].seq
	})
}

// extendStops pushes every segment's stop forward by days, clipped at
// the window exit.
func extendStops(segs []segment, days, exit int64) []segment {
	out := make([]segment, 0, len(segs))
	for _, s := range segs {
		s.stop += days
		if s.stop > exit {
			s.stop = exit
		}
		out = append(out, s)
	}
	return out
}

// mergeSameCategory merges consecutive same-category segments whose gap
// is at most mergeDays. Overlapping same-category segments always merge.
func mergeSameCategory(segs []segment, mergeDays int64) []segment {
	if len(segs) == 0 {
		return segs
	}
	byCategory := make(map[string][]segment)
	var categories []string
	for _, s := range segs {
		if _, ok := byCategory[s.category]; !ok {
			categories = append(categories, s.category)
		}
		byCategory[s.category] = append(byCategory[s.category], s)
	}

	var out []segment
	for _, cat := range categories {
		group := byCategory[cat]
		sortSegments(group)
		cur := group[0]
		for _, next := range group[1:] {
			if next.start-cur.stop <= mergeDays {
				if next.start < cur.stop {
					// overlapped span contributes its number once; only the
					// overhang share of next is added
					if overhang := next.stop - cur.stop; overhang > 0 {
						cur.number += next.number * float64(overhang) / float64(next.duration())
					}
				} else {
					cur.number += next.number
				}
				if next.stop > cur.stop {
					cur.stop = next.stop
				}
				continue
			}
			out = append(out, cur)
			cur = next
		}
		out = append(out, cur)
	}
	sortSegments(out)
	return out
}

// overrideWashout extends each resolved segment's stop by days after
// overlap resolution, swallowing or delaying whatever follows.
func overrideWashout(segs []segment, days, exit int64) []segment {
	var out []segment
	for i := 0; i < len(segs); i++ {
		s := segs[i]
		s.stop += days
		if s.stop > exit {
			s.stop = exit
		}
		// push back or swallow the segments the extension now covers
		for i+1 < len(segs) && segs[i+1].start < s.stop {
			if segs[i+1].stop <= s.stop {
				i++
				continue
			}
			segs[i+1].start = s.stop
			break
		}
		out = append(out, s)
	}
	return coalesce(out)
}
