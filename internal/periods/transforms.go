package periods

import (
	"tvpanel/pkg/contracts/domain"
)

// fillGaps makes the segment sequence contiguous across [entry, exit).
// Gaps of at most grace days following an exposed segment are absorbed
// into that segment; every other uncovered span becomes a reference
// segment. Leading and trailing spans are always reference time.
func fillGaps(segs []segment, w domain.ObservationWindow, reference string, grace int64) []segment {
	if len(segs) == 0 {
		return []segment{{start: w.Entry, stop: w.Exit, category: reference, seq: -1}}
	}
	var out []segment
	cursor := w.Entry
	for _, s := range segs {
		if s.start > cursor {
			gap := s.start - cursor
			if grace > 0 && gap <= grace && len(out) > 0 && out[len(out)-1].category != reference {
				out[len(out)-1].stop = s.start
			} else {
				out = append(out, segment{start: cursor, stop: s.start, category: reference, seq: -1})
			}
		}
		out = append(out, s)
		cursor = s.stop
	}
	if cursor < w.Exit {
		out = append(out, segment{start: cursor, stop: w.Exit, category: reference, seq: -1})
	}
	return out
}

// coalesce merges adjacent segments carrying an identical category, so
// the output has the minimum number of intervals representing the same
// information. Running it twice equals running it once.
func coalesce(segs []segment) []segment {
	if len(segs) <= 1 {
		return segs
	}
	out := segs[:1:1]
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if s.category == last.category && s.start == last.stop {
			last.stop = s.stop
			last.number += s.number
			continue
		}
		out = append(out, s)
	}
	return out
}

// applyTransform derives the panel's exposure variable from the merged
// category sequence. Ever-treated and current-former are functions of
// the first-exposure timestamp; cumulative duration is the running
// exposed time as of each interval's start, monotone non-decreasing.
func (b *Builder) applyTransform(w domain.ObservationWindow, segs []segment) *domain.Panel {
	panel := &domain.Panel{
		Columns: []domain.Column{{Name: b.cfg.ColumnName}},
	}
	if b.cfg.DoseColumn != "" {
		panel.Columns = append(panel.Columns, domain.Column{Name: b.cfg.DoseColumn, Continuous: true})
	}

	firstExposure, everExposed := int64(0), false
	for _, s := range segs {
		if s.category != b.cfg.Reference {
			firstExposure, everExposed = s.start, true
			break
		}
	}

	switch b.cfg.Transform.Kind {
	case domain.TransformEverTreated:
		segs = b.relabel(segs, func(s segment) string {
			if everExposed && s.start >= firstExposure {
				return "1"
			}
			return "0"
		})
	case domain.TransformCurrentFormer:
		segs = b.relabel(segs, func(s segment) string {
			switch {
			case s.category != b.cfg.Reference:
				return "1"
			case everExposed && s.start >= firstExposure:
				return "2"
			default:
				return "0"
			}
		})
	case domain.TransformCumulativeDuration:
		divisor, _ := b.cfg.Transform.Unit.Divisor()
		panel.Columns = append(panel.Columns, domain.Column{
			Name: "cumulative_" + string(b.cfg.Transform.Unit),
		})
		cumDays := int64(0)
		for _, s := range segs {
			iv := b.interval(w.SubjectID, s)
			iv.Values = append(iv.Values, domain.Num(float64(cumDays)/divisor))
			panel.Intervals = append(panel.Intervals, iv)
			if s.category != b.cfg.Reference {
				cumDays += s.duration()
			}
		}
		return panel
	}

	for _, s := range segs {
		panel.Intervals = append(panel.Intervals, b.interval(w.SubjectID, s))
	}
	return panel
}

// relabel maps each segment's category through label and re-coalesces,
// since the transform may make previously distinct neighbors identical.
func (b *Builder) relabel(segs []segment, label func(segment) string) []segment {
	out := make([]segment, len(segs))
	for i, s := range segs {
		s.category = label(s)
		out[i] = s
	}
	return coalesce(out)
}

// interval materializes one segment as a panel row.
func (b *Builder) interval(subjectID string, s segment) domain.Interval {
	iv := domain.Interval{
		SubjectID: subjectID,
		Start:     s.start,
		Stop:      s.stop,
		Values:    []domain.Value{domain.Cat(s.category)},
	}
	if b.cfg.DoseColumn != "" {
		iv.Values = append(iv.Values, domain.Num(s.number))
	}
	return iv
}
