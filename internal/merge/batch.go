package merge

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"tvpanel/internal/diagnostics"
	"tvpanel/pkg/contracts/domain"
)

// MergeBatches runs Merge over subject-partitioned batches in parallel.
// The union-of-boundaries operation is associative and commutative, and
// no state is shared between subjects, so batching does not change the
// result. Cancellation is honored at batch granularity.
func (m *Merger) MergeBatches(ctx context.Context, panels []*domain.Panel) (*domain.Panel, *diagnostics.Report, error) {
	report := diagnostics.NewReport("panel_merger")

	// validation must fail fast, before any batch is scheduled
	columns, err := m.outputColumns(panels)
	if err != nil {
		return nil, report, err
	}
	subjects, err := m.reconcileSubjects(panels, report)
	if err != nil {
		return nil, report, err
	}

	batchSize := m.cfg.BatchSize
	if batchSize <= 0 || batchSize >= len(subjects) {
		out, mergeReport, err := m.Merge(ctx, panels)
		report.Merge(mergeReport)
		return out, report, err
	}

	var batches [][]string
	for lo := 0; lo < len(subjects); lo += batchSize {
		hi := lo + batchSize
		if hi > len(subjects) {
			hi = len(subjects)
		}
		batches = append(batches, subjects[lo:hi])
	}

	m.logger.InfoContext(ctx, "merging panels in batches",
		slog.Int("subjects", len(subjects)),
		slog.Int("batch_count", len(batches)),
		slog.Int("batch_size", batchSize))

	out := &domain.Panel{Columns: columns}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	if m.cfg.Workers > 0 {
		g.SetLimit(m.cfg.Workers)
	}
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			subset := make([]*domain.Panel, len(panels))
			for k, p := range panels {
				subset[k] = restrict(p, batch)
			}
			// lenient mode within the batch: the subject set was already
			// reconciled above, and restriction makes sets unequal
			batchMerger := NewMerger(m.logger, Config{
				Mode:     ModeLenient,
				Renames:  m.cfg.Renames,
				Prefixes: m.cfg.Prefixes,
			})
			merged, batchReport, err := batchMerger.Merge(ctx, subset)
			if err != nil {
				return err
			}
			batchReport.Warnings = nil // restriction artifacts, already reported
			mu.Lock()
			defer mu.Unlock()
			out.Intervals = append(out.Intervals, merged.Intervals...)
			for k, v := range batchReport.Counts {
				if k != diagnostics.CountSubjectsMissing {
					report.Counts[k] += v
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	out.Sort()
	return out, report, nil
}

// restrict returns a shallow panel copy holding only the given subjects.
func restrict(p *domain.Panel, subjects []string) *domain.Panel {
	keep := make(map[string]struct{}, len(subjects))
	for _, id := range subjects {
		keep[id] = struct{}{}
	}
	out := &domain.Panel{Columns: p.Columns}
	for _, iv := range p.Intervals {
		if _, ok := keep[iv.SubjectID]; ok {
			out.Intervals = append(out.Intervals, iv)
		}
	}
	return out
}
