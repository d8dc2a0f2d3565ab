package events

import (
	"context"
	"log/slog"
	"sort"

	"tvpanel/internal/diagnostics"
	"tvpanel/internal/errors"
	"tvpanel/pkg/contracts/domain"
)

// SplitConfig holds the immutable per-run configuration of the event
// splitter.
type SplitConfig struct {
	// Policy selects single (censor at first event) or recurring.
	Policy domain.EventPolicy
	// Unit expresses the generated elapsed-time variable.
	Unit domain.TimeUnit
	// KindPriority breaks ties between competing events sharing an
	// identical date; earlier entries win, unlisted kinds rank after
	// listed ones in input order.
	KindPriority []string
	// EventColumn names the generated event-kind column.
	EventColumn string
	// ElapsedColumn names the generated time-since-entry column.
	ElapsedColumn string
}

// DefaultSplitConfig returns single-event splitting with day units.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		Policy:        domain.EventPolicySingle,
		Unit:          domain.UnitDays,
		EventColumn:   "event",
		ElapsedColumn: "elapsed",
	}
}

// Splitter integrates point-in-time outcome events into a time-varying
// panel: intervals are split at event dates, continuous fields are
// prorated across the split, the containing interval is flagged with the
// event kind, and an elapsed-time variable is appended.
type Splitter struct {
	logger *slog.Logger
	cfg    SplitConfig
}

// NewSplitter creates an event splitter. A nil logger falls back to
// slog.Default.
func NewSplitter(logger *slog.Logger, cfg SplitConfig) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Policy == "" {
		cfg.Policy = domain.EventPolicySingle
	}
	if cfg.Unit == "" {
		cfg.Unit = domain.UnitDays
	}
	if cfg.EventColumn == "" {
		cfg.EventColumn = "event"
	}
	if cfg.ElapsedColumn == "" {
		cfg.ElapsedColumn = "elapsed"
	}
	return &Splitter{logger: logger, cfg: cfg}
}

// Split produces a new panel with event splits applied. The input panel
// is never mutated. Events outside a subject's window are ignored with a
// warning; duplicate events are de-duplicated before splitting.
func (s *Splitter) Split(ctx context.Context, panel *domain.Panel, windows []domain.ObservationWindow, evs []domain.Event) (*domain.Panel, *diagnostics.Report, error) {
	report := diagnostics.NewReport("event_splitter")

	if panel == nil || len(panel.Columns) == 0 {
		return nil, report, errors.NewSplitError(errors.CodeMissingRequiredField,
			"panel has no covariate columns")
	}
	divisor, err := s.cfg.Unit.Divisor()
	if err != nil {
		return nil, report, errors.NewSplitError(errors.CodeUnknownTimeUnit, err.Error())
	}
	if !s.cfg.Policy.Valid() {
		return nil, report, errors.NewAppValidationError(
			"event policy must be single or recurring")
	}

	windowByID := make(map[string]domain.ObservationWindow, len(windows))
	for _, w := range windows {
		windowByID[w.SubjectID] = w
	}

	out := &domain.Panel{
		Columns: append(append([]domain.Column{}, panel.Columns...),
			domain.Column{Name: s.cfg.EventColumn},
			domain.Column{Name: s.cfg.ElapsedColumn}),
	}

	eventsByID := s.groupEvents(evs, report)
	bySubject := panel.BySubject()

	for _, subjectID := range panel.Subjects() {
		intervals := cloneSorted(bySubject[subjectID])
		window, ok := windowByID[subjectID]
		if !ok {
			window = inferWindow(subjectID, intervals)
		}

		subjectEvents := s.usableEvents(subjectID, eventsByID[subjectID], window, report)

		if s.cfg.Policy == domain.EventPolicySingle && len(subjectEvents) > 0 {
			subjectEvents = subjectEvents[:1]
		}

		for _, ev := range subjectEvents {
			intervals = s.splitAt(panel.Columns, intervals, ev.Date, report)
		}
		if s.cfg.Policy == domain.EventPolicySingle && len(subjectEvents) > 0 {
			intervals = censorAt(intervals, subjectEvents[0].Date)
			report.Add(diagnostics.CountSubjectsCensored, 1)
		}

		for _, iv := range intervals {
			if iv.Start >= window.Exit {
				report.Warnf(subjectID, "interval starting at window exit ignored")
				continue
			}
			iv.Values = append(iv.Values,
				domain.Cat(eventFlag(iv, subjectEvents)),
				domain.Num(float64(iv.Start-window.Entry)/divisor))
			out.Intervals = append(out.Intervals, iv)
		}
	}

	out.Sort()
	s.logger.InfoContext(ctx, "integrated events into panel",
		slog.Int("input_intervals", len(panel.Intervals)),
		slog.Int("output_intervals", len(out.Intervals)),
		slog.Int("splits", report.Counts[diagnostics.CountSplitsApplied]))
	return out, report, nil
}

// groupEvents de-duplicates events and partitions them by subject.
func (s *Splitter) groupEvents(evs []domain.Event, report *diagnostics.Report) map[string][]domain.Event {
	type key struct {
		id   string
		date domain.Date
		kind string
	}
	seen := make(map[key]struct{}, len(evs))
	out := make(map[string][]domain.Event)
	for _, ev := range evs {
		k := key{ev.SubjectID, ev.Date, ev.Kind}
		if _, dup := seen[k]; dup {
			report.Add(diagnostics.CountDuplicateEvents, 1)
			continue
		}
		seen[k] = struct{}{}
		out[ev.SubjectID] = append(out[ev.SubjectID], ev)
	}
	return out
}

// usableEvents drops out-of-window events with a warning and orders the
// remainder by date, breaking same-date competing-risk ties with the
// configured kind priority.
func (s *Splitter) usableEvents(subjectID string, evs []domain.Event, w domain.ObservationWindow, report *diagnostics.Report) []domain.Event {
	rank := make(map[string]int, len(s.cfg.KindPriority))
	for i, kind := range s.cfg.KindPriority {
		rank[kind] = i
	}
	rankOf := func(kind string, seq int) (int, int) {
		if r, ok := rank[kind]; ok {
			return r, 0
		}
		return len(s.cfg.KindPriority), seq
	}

	var usable []domain.Event
	seqOf := make(map[domain.Event]int, len(evs))
	for i, ev := range evs {
		seqOf[ev] = i
		if ev.Date <= w.Entry || ev.Date > w.Exit {
			report.Add(diagnostics.CountEventsOutsideWindow, 1)
			report.Warnf(subjectID, "event %q on day %d outside (%d, %d], ignored",
				ev.Kind, ev.Date, w.Entry, w.Exit)
			continue
		}
		usable = append(usable, ev)
	}

	sort.SliceStable(usable, func(i, j int) bool {
		a, b := usable[i], usable[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		ra, sa := rankOf(a.Kind, seqOf[a])
		rb, sb := rankOf(b.Kind, seqOf[b])
		if ra != rb {
			return ra < rb
		}
		return sa < sb
	})

	for i := 1; i < len(usable); i++ {
		if usable[i].Date == usable[i-1].Date {
			report.Warnf(subjectID, "competing events %q and %q share day %d; %q wins by priority",
				usable[i-1].Kind, usable[i].Kind, usable[i].Date, usable[i-1].Kind)
		}
	}
	return usable
}

// splitAt cuts the interval containing date into [start, date) and
// [date, stop). A date coinciding with an existing boundary produces no
// split, so zero-length intervals never appear. Continuous fields are
// redistributed in proportion to the sub-interval durations.
func (s *Splitter) splitAt(columns []domain.Column, intervals []domain.Interval, date domain.Date, report *diagnostics.Report) []domain.Interval {
	for i, iv := range intervals {
		if !(date > iv.Start && date < iv.Stop) {
			continue
		}
		left, right := iv.CloneValues(), iv.CloneValues()
		left.Stop, right.Start = date, date

		total := float64(iv.Duration())
		for ci, col := range columns {
			if !col.Continuous || ci >= len(iv.Values) || iv.Values[ci].Missing {
				continue
			}
			v := iv.Values[ci].Number
			left.Values[ci] = domain.Num(v * float64(left.Duration()) / total)
			right.Values[ci] = domain.Num(v * float64(right.Duration()) / total)
		}

		report.Add(diagnostics.CountSplitsApplied, 1)
		return append(intervals[:i:i],
			append([]domain.Interval{left, right}, intervals[i+1:]...)...)
	}
	return intervals
}

// censorAt drops every interval extending past the event date.
func censorAt(intervals []domain.Interval, date domain.Date) []domain.Interval {
	out := intervals[:0:0]
	for _, iv := range intervals {
		if iv.Stop <= date {
			out = append(out, iv)
		}
	}
	return out
}

// eventFlag returns the kind flagged on an interval whose stop matches a
// resolved event date, or "" otherwise.
func eventFlag(iv domain.Interval, evs []domain.Event) string {
	for _, ev := range evs {
		if iv.Stop == ev.Date {
			return ev.Kind
		}
	}
	return ""
}

// cloneSorted returns an order-stable private copy of a subject's rows.
func cloneSorted(intervals []domain.Interval) []domain.Interval {
	out := make([]domain.Interval, len(intervals))
	copy(out, intervals)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Stop < out[j].Stop
	})
	return out
}

// inferWindow derives a window from the panel extent when the caller did
// not supply one for the subject.
func inferWindow(subjectID string, intervals []domain.Interval) domain.ObservationWindow {
	w := domain.ObservationWindow{SubjectID: subjectID}
	if len(intervals) == 0 {
		return w
	}
	w.Entry = intervals[0].Start
	w.Exit = intervals[0].Stop
	for _, iv := range intervals {
		if iv.Start < w.Entry {
			w.Entry = iv.Start
		}
		if iv.Stop > w.Exit {
			w.Exit = iv.Stop
		}
	}
	return w
}
