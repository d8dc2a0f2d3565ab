package diagnostics

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Count keys shared by the engine stages. Per-record anomalies are
// recovered locally and tallied here; they never abort a run.
const (
	CountInvalidPeriods      = "invalid_periods_dropped"
	CountPeriodsOutsideWindow = "periods_outside_window_dropped"
	CountPeriodsClipped      = "periods_clipped"
	CountDuplicateEvents     = "duplicate_events_dropped"
	CountEventsOutsideWindow = "events_outside_window_ignored"
	CountSplitsApplied       = "splits_applied"
	CountSubjectsCensored    = "subjects_censored"
	CountSubjectsMissing     = "subjects_missing_from_panel"
	CountSubjectsDisjoint    = "subjects_disjoint_dropped"
	CountIntervalsNA         = "intervals_filled_not_applicable"
)

// Finding is one advisory message attached to a report.
type Finding struct {
	SubjectID string `json:"subject_id,omitempty"`
	Message   string `json:"message"`
}

// CoverageRow summarizes how well one subject's intervals tile the
// observation window.
type CoverageRow struct {
	SubjectID    string  `json:"subject_id"`
	ExpectedDays int64   `json:"expected_days"`
	CoveredDays  int64   `json:"covered_days"`
	GapDays      int64   `json:"gap_days"`
	OverlapDays  int64   `json:"overlap_days"`
	PctCovered   float64 `json:"pct_covered"`
}

// Report is the structured diagnostics output of one stage. It is handed
// to logging/reporting collaborators; the engine never writes it anywhere.
type Report struct {
	ID        string           `json:"id"`
	Stage     string           `json:"stage"`
	CreatedAt time.Time        `json:"created_at"`
	Counts    map[string]int   `json:"counts"`
	Warnings  []Finding        `json:"warnings,omitempty"`
	Coverage  []CoverageRow    `json:"coverage,omitempty"`
	Deltas    map[string]int64 `json:"person_time_deltas,omitempty"`
}

// NewReport creates an empty report for the named stage.
func NewReport(stage string) *Report {
	return &Report{
		ID:        uuid.New().String(),
		Stage:     stage,
		CreatedAt: time.Now().UTC(),
		Counts:    make(map[string]int),
	}
}

// Add increments a named counter.
func (r *Report) Add(key string, n int) {
	if n != 0 {
		r.Counts[key] += n
	}
}

// Warnf appends a warning finding for a subject.
func (r *Report) Warnf(subjectID, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Finding{
		SubjectID: subjectID,
		Message:   fmt.Sprintf(format, args...),
	})
}

// HasWarnings reports whether any warning was recorded.
func (r *Report) HasWarnings() bool {
	return len(r.Warnings) > 0 || len(r.Deltas) > 0
}

// Merge folds another stage's counts and findings into this report.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	for k, v := range other.Counts {
		r.Counts[k] += v
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Coverage = append(r.Coverage, other.Coverage...)
	for k, v := range other.Deltas {
		if r.Deltas == nil {
			r.Deltas = make(map[string]int64)
		}
		r.Deltas[k] += v
	}
}

// CountKeys returns the recorded counter names in sorted order, for
// deterministic rendering by reporting collaborators.
func (r *Report) CountKeys() []string {
	keys := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
