package domain

// ObservationWindow defines the span [Entry, Exit) within which a subject
// contributes person-time. Derived intervals extending outside the window
// are clipped, not dropped.
type ObservationWindow struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Entry     Date   `json:"entry"`
	Exit      Date   `json:"exit"`
}

// Duration returns the total observable person-time of the window.
func (w ObservationWindow) Duration() int64 {
	return w.Exit - w.Entry
}

// Empty reports whether the window holds no observable time.
func (w ObservationWindow) Empty() bool {
	return w.Exit <= w.Entry
}

// ExposurePeriod is one raw exposure/treatment record. Periods for the
// same subject may overlap in time and carry different categories.
// Number is used when the category column actually holds a dose amount.
type ExposurePeriod struct {
	SubjectID string  `json:"subject_id" validate:"required"`
	Start     Date    `json:"start"`
	Stop      Date    `json:"stop"`
	Category  string  `json:"category"`
	Number    float64 `json:"number,omitempty"`
}

// Duration returns the raw period length.
func (p ExposurePeriod) Duration() int64 {
	return p.Stop - p.Start
}

// Event is a point-in-time outcome occurrence. Kind distinguishes
// terminal types for competing-risk resolution.
type Event struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Date      Date   `json:"date"`
	Kind      string `json:"kind" validate:"required"`
}

// EventPolicy controls what happens to a subject's panel after an event.
type EventPolicy string

const (
	// EventPolicySingle right-censors the panel at the first event.
	EventPolicySingle EventPolicy = "single"
	// EventPolicyRecurring splits at every event without censoring.
	EventPolicyRecurring EventPolicy = "recurring"
)

// Valid reports whether the policy is one of the known values.
func (p EventPolicy) Valid() bool {
	return p == EventPolicySingle || p == EventPolicyRecurring
}
