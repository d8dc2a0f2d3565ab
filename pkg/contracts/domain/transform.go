package domain

import "fmt"

// TimeUnit expresses a duration scale for elapsed-time and cumulative
// exposure variables. Divisors follow epidemiological convention
// (365.25-day years).
type TimeUnit string

const (
	UnitDays     TimeUnit = "days"
	UnitWeeks    TimeUnit = "weeks"
	UnitMonths   TimeUnit = "months"
	UnitQuarters TimeUnit = "quarters"
	UnitYears    TimeUnit = "years"
)

// Divisor returns the number of days per unit.
func (u TimeUnit) Divisor() (float64, error) {
	switch u {
	case UnitDays:
		return 1, nil
	case UnitWeeks:
		return 7, nil
	case UnitMonths:
		return 365.25 / 12, nil
	case UnitQuarters:
		return 365.25 / 4, nil
	case UnitYears:
		return 365.25, nil
	default:
		return 0, fmt.Errorf("unknown time unit %q", string(u))
	}
}

// TransformKind selects how raw exposure periods become the panel's
// exposure variable.
type TransformKind string

const (
	// TransformReference keeps raw categories and fills uncovered time
	// with the reference category.
	TransformReference TransformKind = "reference"
	// TransformEverTreated collapses exposure to a monotone 0/1 flag
	// that flips at first exposure.
	TransformEverTreated TransformKind = "ever_treated"
	// TransformCurrentFormer yields never(0)/current(1)/former(2).
	TransformCurrentFormer TransformKind = "current_former"
	// TransformLag shifts exposure onset forward by Days.
	TransformLag TransformKind = "lag"
	// TransformWashout extends exposure persistence Days past each raw
	// stop before reverting to reference.
	TransformWashout TransformKind = "washout"
	// TransformCumulativeDuration adds a running total of exposed time,
	// expressed in Unit as of each interval's start.
	TransformCumulativeDuration TransformKind = "cumulative_duration"
)

// Transform is the exposure-type configuration applied by the period
// builder. It is a plain value; stages never mutate shared state.
type Transform struct {
	Kind TransformKind `json:"kind"`
	Days int64         `json:"days,omitempty"`
	Unit TimeUnit      `json:"unit,omitempty"`
}

// Validate rejects unknown kinds and malformed parameters.
func (t Transform) Validate() error {
	switch t.Kind {
	case TransformReference, TransformEverTreated, TransformCurrentFormer:
		return nil
	case TransformLag, TransformWashout:
		if t.Days <= 0 {
			return fmt.Errorf("transform %s requires days > 0, got %d", t.Kind, t.Days)
		}
		return nil
	case TransformCumulativeDuration:
		if _, err := t.Unit.Divisor(); err != nil {
			return fmt.Errorf("transform %s: %w", t.Kind, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown transform kind %q", string(t.Kind))
	}
}
