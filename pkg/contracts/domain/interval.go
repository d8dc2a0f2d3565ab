package domain

import (
	"sort"
)

// Date is a caller-normalized day number on a single comparable axis.
// The engine never parses calendar strings; the loader converts dates to
// day numbers before records enter any stage.
type Date = int64

// Value is a single covariate cell. Whether Category or Number is the
// meaningful half is decided by the owning Column's Continuous flag.
type Value struct {
	Category string  `json:"category,omitempty"`
	Number   float64 `json:"number,omitempty"`
	Missing  bool    `json:"missing,omitempty"`
}

// Cat returns a categorical value.
func Cat(category string) Value {
	return Value{Category: category}
}

// Num returns a continuous value.
func Num(number float64) Value {
	return Value{Number: number}
}

// NA returns the designated "not applicable/missing" value used when a
// merged sub-interval is not covered by a contributing panel.
func NA() Value {
	return Value{Missing: true}
}

// Interval is one row of a subject's panel: a half-open time span
// [Start, Stop) carrying one value per panel column. Point intervals
// (Start == Stop) are permitted only as explicit single-day events.
type Interval struct {
	SubjectID string  `json:"subject_id"`
	Start     Date    `json:"start"`
	Stop      Date    `json:"stop"`
	Values    []Value `json:"values"`
}

// Duration returns the person-time contributed by the interval.
func (iv Interval) Duration() int64 {
	return iv.Stop - iv.Start
}

// Contains reports whether d falls inside [Start, Stop).
func (iv Interval) Contains(d Date) bool {
	return d >= iv.Start && d < iv.Stop
}

// CloneValues returns a copy of the interval with its own value slice,
// so transformations never alias a previous stage's output.
func (iv Interval) CloneValues() Interval {
	out := iv
	out.Values = make([]Value, len(iv.Values))
	copy(out.Values, iv.Values)
	return out
}

// Column declares one covariate field of a panel. Continuous columns are
// prorated across split boundaries; categorical columns are copied.
type Column struct {
	Name       string `json:"name" validate:"required"`
	Continuous bool   `json:"continuous"`
}

// Panel is an ordered set of covariate columns plus the interval rows
// carrying their values. Rows are kept sorted by subject then start.
type Panel struct {
	Columns   []Column   `json:"columns"`
	Intervals []Interval `json:"intervals"`
}

// ColumnIndex returns the position of the named column, or -1.
func (p *Panel) ColumnIndex(name string) int {
	for i, c := range p.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Sort orders intervals by subject id, then start, then stop.
func (p *Panel) Sort() {
	sort.SliceStable(p.Intervals, func(i, j int) bool {
		a, b := p.Intervals[i], p.Intervals[j]
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Stop < b.Stop
	})
}

// Subjects returns the distinct subject ids in sorted order.
func (p *Panel) Subjects() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, iv := range p.Intervals {
		if _, ok := seen[iv.SubjectID]; !ok {
			seen[iv.SubjectID] = struct{}{}
			ids = append(ids, iv.SubjectID)
		}
	}
	sort.Strings(ids)
	return ids
}

// BySubject partitions the intervals by subject id. The returned slices
// share backing storage with the panel; callers that mutate must clone.
func (p *Panel) BySubject() map[string][]Interval {
	out := make(map[string][]Interval)
	for _, iv := range p.Intervals {
		out[iv.SubjectID] = append(out[iv.SubjectID], iv)
	}
	return out
}

// PersonTime sums interval durations per subject.
func (p *Panel) PersonTime() map[string]int64 {
	out := make(map[string]int64)
	for _, iv := range p.Intervals {
		out[iv.SubjectID] += iv.Duration()
	}
	return out
}
