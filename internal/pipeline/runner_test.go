package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvpanel/internal/diagnostics"
	"tvpanel/internal/errors"
	"tvpanel/internal/events"
	"tvpanel/internal/merge"
	"tvpanel/internal/periods"
	"tvpanel/pkg/contracts/domain"
)

func newTestRunner(t *testing.T, allowCensoring bool) *Runner {
	t.Helper()
	builder := periods.NewBuilder(nil, periods.DefaultBuildConfig())
	splitter := events.NewSplitter(nil, events.DefaultSplitConfig())
	merger := merge.NewMerger(nil, merge.DefaultConfig())
	checker := diagnostics.NewChecker(nil, false)

	return NewRunner(nil, nil, nil,
		NewBuildStep(nil, builder, 2),
		NewMergeStep(nil, merger),
		NewSplitStep(nil, splitter),
		NewVerifyStep(nil, checker, allowCensoring),
	)
}

func TestRunnerEndToEnd(t *testing.T) {
	windows := []domain.ObservationWindow{{SubjectID: "s1", Entry: 0, Exit: 100}}
	rawPeriods := []domain.ExposurePeriod{{SubjectID: "s1", Start: 20, Stop: 50, Category: "A"}}
	evs := []domain.Event{{SubjectID: "s1", Date: 35, Kind: "death"}}

	state := NewRunState("", windows, rawPeriods, evs)
	runner := newTestRunner(t, true)

	require.NoError(t, runner.Run(context.Background(), state))
	assert.NotEmpty(t, state.RunID)

	panel := state.CurrentPanel()
	require.NotNil(t, panel)

	// single event policy censors at day 35: [0,20) unexposed, [20,35) A
	require.Len(t, panel.Intervals, 2)
	assert.Equal(t, domain.Date(0), panel.Intervals[0].Start)
	assert.Equal(t, domain.Date(20), panel.Intervals[0].Stop)
	assert.Equal(t, "unexposed", panel.Intervals[0].Values[0].Category)
	assert.Equal(t, domain.Date(20), panel.Intervals[1].Start)
	assert.Equal(t, domain.Date(35), panel.Intervals[1].Stop)
	assert.Equal(t, "A", panel.Intervals[1].Values[0].Category)

	// the interval ending at the event carries the event flag
	evIdx := panel.ColumnIndex("event")
	require.GreaterOrEqual(t, evIdx, 0)
	assert.Equal(t, "death", panel.Intervals[1].Values[evIdx].Category)
	assert.Equal(t, "", panel.Intervals[0].Values[evIdx].Category)

	states := state.StepStates()
	require.Len(t, states, 4)
	assert.Equal(t, StepStatusCompleted, states[0].CurrentStatus())
	assert.Equal(t, StepStatusSkipped, states[1].CurrentStatus()) // no side panels
	assert.Equal(t, StepStatusCompleted, states[2].CurrentStatus())
	assert.Equal(t, StepStatusCompleted, states[3].CurrentStatus())
}

func TestRunnerNoEventsSkipsSplit(t *testing.T) {
	windows := []domain.ObservationWindow{{SubjectID: "s1", Entry: 0, Exit: 10}}
	state := NewRunState("run-1", windows, nil, nil)

	require.NoError(t, newTestRunner(t, false).Run(context.Background(), state))
	assert.Equal(t, "run-1", state.RunID)

	panel := state.CurrentPanel()
	require.NotNil(t, panel)
	require.Len(t, panel.Intervals, 1)
	assert.Equal(t, "unexposed", panel.Intervals[0].Values[0].Category)

	assert.Equal(t, StepStatusSkipped, state.StepState(StepIDSplit).CurrentStatus())
	assert.Equal(t, StepStatusCompleted, state.StepState(StepIDVerify).CurrentStatus())
}

func TestRunnerValidationFailureAborts(t *testing.T) {
	state := NewRunState("", nil, nil, nil)
	err := newTestRunner(t, false).Run(context.Background(), state)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeEmptyWindow))

	assert.Equal(t, StepStatusFailed, state.StepState(StepIDBuild).CurrentStatus())
	assert.Nil(t, state.StepState(StepIDMerge))
}

func TestRunnerDuplicateWindowRejected(t *testing.T) {
	windows := []domain.ObservationWindow{
		{SubjectID: "s1", Entry: 0, Exit: 10},
		{SubjectID: "s1", Entry: 5, Exit: 20},
	}
	state := NewRunState("", windows, nil, nil)
	err := newTestRunner(t, false).Run(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, errors.ErrTypeValidation, errors.TypeOf(err))
}

func TestRunnerWithSidePanels(t *testing.T) {
	windows := []domain.ObservationWindow{{SubjectID: "s1", Entry: 0, Exit: 10}}
	side := &domain.Panel{
		Columns: []domain.Column{{Name: "statin"}},
		Intervals: []domain.Interval{
			{SubjectID: "s1", Start: 0, Stop: 10, Values: []domain.Value{domain.Cat("yes")}},
		},
	}

	state := NewRunState("", windows, nil, nil)
	state.SidePanels = []*domain.Panel{side}

	require.NoError(t, newTestRunner(t, false).Run(context.Background(), state))
	assert.Equal(t, StepStatusCompleted, state.StepState(StepIDMerge).CurrentStatus())

	panel := state.CurrentPanel()
	require.NotNil(t, panel)
	assert.GreaterOrEqual(t, panel.ColumnIndex("statin"), 0)
	assert.GreaterOrEqual(t, panel.ColumnIndex("exposure"), 0)
}

func TestCombinedReport(t *testing.T) {
	windows := []domain.ObservationWindow{{SubjectID: "s1", Entry: 0, Exit: 100}}
	rawPeriods := []domain.ExposurePeriod{
		{SubjectID: "s1", Start: 20, Stop: 50, Category: "A"},
		{SubjectID: "s1", Start: 90, Stop: 80, Category: "A"}, // invalid, dropped
	}
	state := NewRunState("", windows, rawPeriods, nil)
	require.NoError(t, newTestRunner(t, false).Run(context.Background(), state))

	combined := CombinedReport(state)
	assert.Equal(t, 1, combined.Counts[diagnostics.CountInvalidPeriods])
	assert.NotEmpty(t, combined.Coverage)
}
