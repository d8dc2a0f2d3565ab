package pipeline

import (
	"sync"

	"tvpanel/internal/diagnostics"
	"tvpanel/pkg/contracts/domain"
)

// RunState is the shared state of one pipeline run. Inputs are set
// before Run; each step records its outputs and diagnostic report here.
type RunState struct {
	mu sync.RWMutex

	// RunID identifies this run in logs and traces.
	RunID string

	// Inputs.
	Windows []domain.ObservationWindow
	Periods []domain.ExposurePeriod
	Events  []domain.Event

	// SidePanels are pre-built panels merged alongside the built
	// exposure panel, for runs combining several covariate sources.
	SidePanels []*domain.Panel

	// Panel is the current working panel, updated by each step.
	Panel *domain.Panel

	baseline *domain.Panel

	reports []*diagnostics.Report
	steps   map[string]*StepState
	order   []string
}

// NewRunState creates a run state with the given inputs.
func NewRunState(runID string, windows []domain.ObservationWindow, periods []domain.ExposurePeriod, events []domain.Event) *RunState {
	return &RunState{
		RunID:   runID,
		Windows: windows,
		Periods: periods,
		Events:  events,
		steps:   make(map[string]*StepState),
	}
}

// RegisterStep adds a pending step state in execution order.
func (s *RunState) RegisterStep(id, name string) *StepState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := NewStepState(id, name)
	s.steps[id] = st
	s.order = append(s.order, id)
	return st
}

// StepState returns the state of a registered step, or nil.
func (s *RunState) StepState(id string) *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps[id]
}

// StepStates returns the step states in execution order.
func (s *RunState) StepStates() []*StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*StepState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.steps[id])
	}
	return out
}

// AddReport appends a step's diagnostic report.
func (s *RunState) AddReport(r *diagnostics.Report) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

// Reports returns the accumulated diagnostic reports in step order.
func (s *RunState) Reports() []*diagnostics.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*diagnostics.Report, len(s.reports))
	copy(out, s.reports)
	return out
}

// SetPanel swaps in the current working panel.
func (s *RunState) SetPanel(p *domain.Panel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Panel = p
}

// CurrentPanel returns the current working panel.
func (s *RunState) CurrentPanel() *domain.Panel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Panel
}

// SetBaseline snapshots the panel used as the reference for the
// person-time conservation check.
func (s *RunState) SetBaseline(p *domain.Panel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = p
}

// GetBaseline returns the snapshotted pre-split panel, or nil.
func (s *RunState) GetBaseline() *domain.Panel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseline
}

// WindowByID indexes the run's observation windows by subject.
func (s *RunState) WindowByID() map[string]domain.ObservationWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.ObservationWindow, len(s.Windows))
	for _, w := range s.Windows {
		out[w.SubjectID] = w
	}
	return out
}
