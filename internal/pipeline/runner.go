package pipeline

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"tvpanel/internal/diagnostics"
	"tvpanel/internal/infrastructure"
)

// Runner executes the registered steps of a panel run in order. A step
// failure aborts the run; a skipped step is recorded and execution
// continues.
type Runner struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
	steps   []Step
}

// NewRunner creates a runner over the given steps. Tracer and metrics
// may be nil; a nil logger falls back to slog.Default.
func NewRunner(logger *slog.Logger, tracer trace.Tracer, metrics *infrastructure.PipelineMetrics, steps ...Step) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("tvpanel")
	}
	return &Runner{logger: logger, tracer: tracer, metrics: metrics, steps: steps}
}

// Run executes the run to completion. The returned state holds the
// final panel, the per-step states, and the accumulated diagnostics.
func (r *Runner) Run(ctx context.Context, state *RunState) error {
	if state.RunID == "" {
		state.RunID = infrastructure.GenerateTraceID()
	}
	ctx = infrastructure.WithTraceID(ctx, state.RunID)

	ctx, span := r.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", state.RunID),
			attribute.Int("subjects", len(state.Windows)),
		))
	defer span.End()

	start := time.Now()
	if r.metrics != nil {
		r.metrics.ActiveRuns.Add(ctx, 1)
		defer r.metrics.ActiveRuns.Add(ctx, -1)
	}

	r.logger.InfoContext(ctx, "pipeline run started",
		slog.String("run_id", state.RunID),
		slog.Int("windows", len(state.Windows)),
		slog.Int("periods", len(state.Periods)),
		slog.Int("events", len(state.Events)))

	var runErr error
	for _, step := range r.steps {
		if err := r.runStep(ctx, step, state); err != nil {
			runErr = err
			break
		}
	}

	success := runErr == nil
	infrastructure.RecordRunMetrics(ctx, r.metrics, state.RunID, time.Since(start), success, runErr)
	r.recordDiagnostics(ctx, state)

	if runErr != nil {
		infrastructure.RecordError(ctx, runErr)
		r.logger.ErrorContext(ctx, "pipeline run failed",
			slog.String("run_id", state.RunID),
			slog.String("error", runErr.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return runErr
	}

	r.logger.InfoContext(ctx, "pipeline run completed",
		slog.String("run_id", state.RunID),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// runStep executes one step with its own span and step state.
func (r *Runner) runStep(ctx context.Context, step Step, state *RunState) error {
	stepState := state.RegisterStep(step.ID(), step.Name())

	ctx, span := r.tracer.Start(ctx, "pipeline.step."+step.ID(),
		trace.WithAttributes(attribute.String("step.id", step.ID())))
	defer span.End()

	if err := step.Validate(state); err != nil {
		stepState.Fail(err)
		return err
	}

	stepState.Start()
	r.logger.InfoContext(ctx, "step started",
		slog.String("step", step.ID()))

	err := step.Execute(ctx, state)
	duration := stepState.Duration()

	switch {
	case stderrors.Is(err, ErrStepSkipped):
		stepState.Skip("nothing to do")
		r.logger.InfoContext(ctx, "step skipped",
			slog.String("step", step.ID()))
		return nil
	case err != nil:
		stepState.Fail(err)
		infrastructure.RecordStageMetrics(ctx, r.metrics, state.RunID, step.ID(), duration, false)
		return err
	default:
		stepState.Complete()
		infrastructure.RecordStageMetrics(ctx, r.metrics, state.RunID, step.ID(), stepState.Duration(), true)
		r.logger.InfoContext(ctx, "step completed",
			slog.String("step", step.ID()),
			slog.Duration("elapsed", stepState.Duration()))
		return nil
	}
}

// recordDiagnostics folds the run's diagnostic reports into metrics and
// the run span.
func (r *Runner) recordDiagnostics(ctx context.Context, state *RunState) {
	warnings := 0
	for _, report := range state.Reports() {
		warnings += len(report.Warnings)
	}
	if r.metrics != nil {
		if warnings > 0 {
			r.metrics.DiagnosticWarnings.Add(ctx, int64(warnings))
		}
		r.metrics.SubjectsProcessed.Add(ctx, int64(len(state.Windows)))
		if p := state.CurrentPanel(); p != nil {
			r.metrics.IntervalsProduced.Add(ctx, int64(len(p.Intervals)))
		}
	}
	infrastructure.AddSpanEvent(ctx, "pipeline.diagnostics", map[string]interface{}{
		"warnings": warnings,
	})
}

// CombinedReport folds every step report of a finished run into one
// report for exporting.
func CombinedReport(state *RunState) *diagnostics.Report {
	out := diagnostics.NewReport("pipeline")
	for _, r := range state.Reports() {
		out.Merge(r)
	}
	return out
}
