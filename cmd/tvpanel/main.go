package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tvpanel/internal/config"
	"tvpanel/internal/diagnostics"
	"tvpanel/internal/events"
	"tvpanel/internal/exporter"
	"tvpanel/internal/infrastructure"
	"tvpanel/internal/loader"
	"tvpanel/internal/merge"
	"tvpanel/internal/periods"
	"tvpanel/internal/pipeline"
	"tvpanel/pkg/contracts/domain"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	windowsFile := flag.String("windows", "", "observation windows table (.csv or .xlsx)")
	periodsFile := flag.String("periods", "", "exposure periods table (.csv or .xlsx)")
	eventsFile := flag.String("events", "", "outcome events table (.csv or .xlsx), optional")
	panelFiles := flag.String("panels", "", "comma-separated panel CSVs to merge in, optional")
	outFile := flag.String("out", "panel.csv", "output panel CSV (relative paths land in the reports dir)")
	workbook := flag.Bool("xlsx", false, "also write an Excel workbook next to the CSV")
	tracing := flag.Bool("trace", false, "emit OpenTelemetry traces to stdout")
	flag.Parse()

	if *windowsFile == "" {
		slog.Error("missing required -windows flag")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	otelCfg := infrastructure.DefaultOTelConfig()
	otelCfg.EnableTracing = *tracing
	otelCfg.EnableMetrics = false
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		logger.Error("Failed to initialize OpenTelemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	ctx := context.Background()
	defer providers.Shutdown(ctx)

	l := loader.NewLoader(logger)
	inputReport := diagnostics.NewReport("loader")

	windows, report, err := loadWindows(l, *windowsFile)
	if err != nil {
		logger.Error("Failed to load windows", slog.String("file", *windowsFile), slog.String("error", err.Error()))
		os.Exit(1)
	}
	inputReport.Merge(report)

	var rawPeriods []domain.ExposurePeriod
	if *periodsFile != "" {
		rawPeriods, report, err = loadPeriods(l, *periodsFile)
		if err != nil {
			logger.Error("Failed to load periods", slog.String("file", *periodsFile), slog.String("error", err.Error()))
			os.Exit(1)
		}
		inputReport.Merge(report)
	}

	var evs []domain.Event
	if *eventsFile != "" {
		evs, report, err = loadEvents(l, *eventsFile)
		if err != nil {
			logger.Error("Failed to load events", slog.String("file", *eventsFile), slog.String("error", err.Error()))
			os.Exit(1)
		}
		inputReport.Merge(report)
	}

	state := pipeline.NewRunState("", windows, rawPeriods, evs)
	if *panelFiles != "" {
		for _, path := range strings.Split(*panelFiles, ",") {
			side, report, err := l.PanelFromCSV(strings.TrimSpace(path))
			if err != nil {
				logger.Error("Failed to load side panel", slog.String("file", path), slog.String("error", err.Error()))
				os.Exit(1)
			}
			inputReport.Merge(report)
			state.SidePanels = append(state.SidePanels, side)
		}
	}
	state.AddReport(inputReport)

	runner := buildRunner(cfg, logger, providers)
	if err := runner.Run(ctx, state); err != nil {
		logger.Error("Pipeline run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := export(cfg, logger, state, *outFile, *workbook); err != nil {
		logger.Error("Export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Run complete",
		slog.String("output", *outFile),
		slog.Int("intervals", len(state.CurrentPanel().Intervals)))
}

// buildRunner wires the engine stages from the engine configuration.
func buildRunner(cfg *config.Config, logger *slog.Logger, providers *infrastructure.OTelProviders) *pipeline.Runner {
	e := cfg.Engine

	buildCfg := periods.DefaultBuildConfig()
	buildCfg.Reference = e.Reference
	buildCfg.Transform = e.DomainTransform()
	buildCfg.MergeDays = e.MergeDays
	buildCfg.GraceDays = e.GraceDays
	buildCfg.Overlap = periods.OverlapStrategy(e.Overlap)
	buildCfg.Priority = e.Priority
	buildCfg.DoseColumn = e.DoseColumn
	buildCfg.Washout = periods.WashoutPolicy(e.WashoutPolicy)
	builder := periods.NewBuilder(logger, buildCfg)

	splitCfg := events.DefaultSplitConfig()
	splitCfg.Policy = e.DomainEventPolicy()
	splitCfg.Unit = e.DomainTimeUnit()
	splitCfg.KindPriority = e.KindPriority
	splitter := events.NewSplitter(logger, splitCfg)

	merger := merge.NewMerger(logger, merge.Config{
		Mode:      merge.Mode(e.MergeMode),
		Renames:   e.MergeRenames,
		Prefixes:  e.MergePrefixes,
		BatchSize: e.BatchSize,
		Workers:   e.Workers,
	})

	checker := diagnostics.NewChecker(logger, e.StrictValidation)
	allowCensoring := e.DomainEventPolicy() == domain.EventPolicySingle

	return pipeline.NewRunner(logger, providers.Tracer, nil,
		pipeline.NewBuildStep(logger, builder, e.Workers),
		pipeline.NewMergeStep(logger, merger),
		pipeline.NewSplitStep(logger, splitter),
		pipeline.NewVerifyStep(logger, checker, allowCensoring),
	)
}

// export writes the finished panel plus the combined diagnostics.
func export(cfg *config.Config, logger *slog.Logger, state *pipeline.RunState, outFile string, workbook bool) error {
	w := exporter.NewCSVWriter(cfg.Paths)
	opts := exporter.PanelOptions{
		NumericColumns: []string{"elapsed", "cumulative_" + cfg.Engine.TimeUnit},
	}
	panel := state.CurrentPanel()

	if err := w.WritePanel(outFile, panel, opts); err != nil {
		return err
	}

	combined := pipeline.CombinedReport(state)
	prefix := strings.TrimSuffix(outFile, filepath.Ext(outFile))
	if err := w.WriteDiagnostics(prefix, combined); err != nil {
		return err
	}
	if combined.HasWarnings() {
		logger.Warn("Run finished with diagnostics findings",
			slog.Int("warnings", len(combined.Warnings)))
	}

	if workbook {
		return w.WriteWorkbook(prefix+".xlsx", panel, combined, opts)
	}
	return nil
}

func loadWindows(l *loader.Loader, path string) ([]domain.ObservationWindow, *diagnostics.Report, error) {
	if isWorkbook(path) {
		return l.WindowsFromXLSX(path, "")
	}
	return l.WindowsFromCSV(path)
}

func loadPeriods(l *loader.Loader, path string) ([]domain.ExposurePeriod, *diagnostics.Report, error) {
	if isWorkbook(path) {
		return l.PeriodsFromXLSX(path, "")
	}
	return l.PeriodsFromCSV(path)
}

func loadEvents(l *loader.Loader, path string) ([]domain.Event, *diagnostics.Report, error) {
	if isWorkbook(path) {
		return l.EventsFromXLSX(path, "")
	}
	return l.EventsFromCSV(path)
}

func isWorkbook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}
