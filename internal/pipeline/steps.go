package pipeline

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"tvpanel/internal/diagnostics"
	"tvpanel/internal/errors"
	"tvpanel/internal/events"
	"tvpanel/internal/merge"
	"tvpanel/internal/periods"
	"tvpanel/pkg/contracts/domain"
)

// Step IDs in execution order.
const (
	StepIDBuild  = "build"
	StepIDMerge  = "merge"
	StepIDSplit  = "split"
	StepIDVerify = "verify"
)

// ErrStepSkipped signals that a step had nothing to do; the runner marks
// it skipped and continues.
var ErrStepSkipped = stderrors.New("step skipped")

// BuildStep derives the exposure panel from raw periods, one subject at
// a time, in parallel.
type BuildStep struct {
	logger  *slog.Logger
	builder *periods.Builder
	workers int
}

// NewBuildStep creates the period-building step.
func NewBuildStep(logger *slog.Logger, builder *periods.Builder, workers int) *BuildStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuildStep{logger: logger, builder: builder, workers: workers}
}

func (s *BuildStep) ID() string   { return StepIDBuild }
func (s *BuildStep) Name() string { return "Build exposure panel" }

func (s *BuildStep) Validate(state *RunState) error {
	if len(state.Windows) == 0 {
		return errors.NewBuildError(errors.CodeEmptyWindow, "run has no observation windows")
	}
	seen := make(map[string]struct{}, len(state.Windows))
	for _, w := range state.Windows {
		if _, dup := seen[w.SubjectID]; dup {
			return errors.NewAppValidationError("duplicate observation window for subject " + w.SubjectID)
		}
		seen[w.SubjectID] = struct{}{}
	}
	return nil
}

func (s *BuildStep) Execute(ctx context.Context, state *RunState) error {
	periodsByID := make(map[string][]domain.ExposurePeriod)
	for _, p := range state.Periods {
		periodsByID[p.SubjectID] = append(periodsByID[p.SubjectID], p)
	}

	windows := make([]domain.ObservationWindow, len(state.Windows))
	copy(windows, state.Windows)
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].SubjectID < windows[j].SubjectID
	})

	panels := make([]*domain.Panel, len(windows))
	reports := make([]*diagnostics.Report, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			panel, report, err := s.builder.Build(gctx, w, periodsByID[w.SubjectID])
			if err != nil {
				return err
			}
			panels[i], reports[i] = panel, report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := &domain.Panel{Columns: panels[0].Columns}
	combined := diagnostics.NewReport("period_builder")
	for i := range panels {
		out.Intervals = append(out.Intervals, panels[i].Intervals...)
		combined.Merge(reports[i])
	}
	out.Sort()

	state.SetPanel(out)
	state.AddReport(combined)
	s.logger.InfoContext(ctx, "exposure panel built",
		slog.Int("subjects", len(windows)),
		slog.Int("intervals", len(out.Intervals)))
	return nil
}

// MergeStep combines the built panel with any side panels supplied for
// the run.
type MergeStep struct {
	logger *slog.Logger
	merger *merge.Merger
}

// NewMergeStep creates the panel-merging step.
func NewMergeStep(logger *slog.Logger, merger *merge.Merger) *MergeStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &MergeStep{logger: logger, merger: merger}
}

func (s *MergeStep) ID() string   { return StepIDMerge }
func (s *MergeStep) Name() string { return "Merge covariate panels" }

func (s *MergeStep) Validate(state *RunState) error {
	return nil
}

func (s *MergeStep) Execute(ctx context.Context, state *RunState) error {
	if len(state.SidePanels) == 0 {
		return ErrStepSkipped
	}
	panels := append([]*domain.Panel{state.CurrentPanel()}, state.SidePanels...)
	merged, report, err := s.merger.MergeBatches(ctx, panels)
	state.AddReport(report)
	if err != nil {
		return err
	}
	state.SetPanel(merged)
	return nil
}

// SplitStep integrates outcome events into the panel. It snapshots the
// pre-split panel so the verify step can compare person-time across the
// split.
type SplitStep struct {
	logger   *slog.Logger
	splitter *events.Splitter
}

// NewSplitStep creates the event-splitting step.
func NewSplitStep(logger *slog.Logger, splitter *events.Splitter) *SplitStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SplitStep{logger: logger, splitter: splitter}
}

func (s *SplitStep) ID() string   { return StepIDSplit }
func (s *SplitStep) Name() string { return "Split intervals at events" }

func (s *SplitStep) Validate(state *RunState) error {
	if state.CurrentPanel() == nil {
		return errors.NewSplitError(errors.CodeMissingRequiredField, "no panel to split")
	}
	return nil
}

func (s *SplitStep) Execute(ctx context.Context, state *RunState) error {
	state.SetBaseline(state.CurrentPanel())
	if len(state.Events) == 0 {
		return ErrStepSkipped
	}
	split, report, err := s.splitter.Split(ctx, state.CurrentPanel(), state.Windows, state.Events)
	state.AddReport(report)
	if err != nil {
		return err
	}
	state.SetPanel(split)
	return nil
}

// VerifyStep runs the interval invariant checks: the pre-split panel
// must tile every observation window exactly, and splitting must not
// create person-time.
type VerifyStep struct {
	logger         *slog.Logger
	checker        *diagnostics.Checker
	allowCensoring bool
}

// NewVerifyStep creates the invariant-checking step. allowCensoring
// permits per-subject person-time loss, for runs censoring at the first
// event.
func NewVerifyStep(logger *slog.Logger, checker *diagnostics.Checker, allowCensoring bool) *VerifyStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifyStep{logger: logger, checker: checker, allowCensoring: allowCensoring}
}

func (s *VerifyStep) ID() string   { return StepIDVerify }
func (s *VerifyStep) Name() string { return "Verify interval invariants" }

func (s *VerifyStep) Validate(state *RunState) error {
	if state.CurrentPanel() == nil {
		return errors.NewInvariantError("no panel to verify")
	}
	return nil
}

func (s *VerifyStep) Execute(ctx context.Context, state *RunState) error {
	baseline := state.GetBaseline()
	if baseline == nil {
		baseline = state.CurrentPanel()
	}

	coverage, err := s.checker.Coverage(ctx, baseline, state.Windows)
	state.AddReport(coverage)
	if err != nil {
		return err
	}

	personTime, err := s.checker.CheckPersonTime(ctx, baseline, state.CurrentPanel(), s.allowCensoring)
	state.AddReport(personTime)
	return err
}
