package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/formmetrics/internal/clock"
	"github.com/smallbiznis/formmetrics/internal/observability/metrics"
	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock `optional:"true"`
	Submissions submissiondomain.Repository
	Population  populationdomain.Service
	Metrics     *metrics.WorkerMetrics `optional:"true"`
	Config      Config                 `optional:"true"`
}

// Worker picks up submitted forms without a finished population run and runs
// the engine on each of them.
type Worker struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	submissions submissiondomain.Repository
	population  populationdomain.Service
	metrics     *metrics.WorkerMetrics
	cfg         Config
}

func NewWorker(p Params) *Worker {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Worker{
		db:          p.DB,
		log:         p.Log.Named("population.worker"),
		clock:       c,
		submissions: p.Submissions,
		population:  p.Population,
		metrics:     p.Metrics,
		cfg:         p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	next := time.Now().Add(w.cfg.PollInterval)
	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("population worker run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			w.metrics.ObserveRunLoopLag(tick.Sub(next))
			next = tick.Add(w.cfg.PollInterval)
		}
	}
}

// RunOnce processes one batch and returns how many submissions were populated.
func (w *Worker) RunOnce(parentCtx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	started := w.clock.Now()
	candidates, processed, err := w.processBatch(ctx, w.cfg.BatchSize)
	w.metrics.ObserveBatch(candidates, w.clock.Now().Sub(started), err)
	return processed, err
}

func (w *Worker) processBatch(ctx context.Context, limit int) (int, int, error) {
	// A run left running longer than a whole batch may take was abandoned.
	staleBefore := w.clock.Now().Add(-w.cfg.RunTimeout)
	rows, err := w.submissions.ListPendingSubmissions(ctx, w.db, staleBefore, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending submissions: %w", err)
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			rowCtx, cancel := context.WithTimeout(gctx, w.cfg.RowTimeout)
			defer cancel()

			rowCtx = populationdomain.WithTrigger(rowCtx, populationdomain.TriggerWorker)
			summary, err := w.population.PopulateFromSubmission(rowCtx, row.ID)
			if err != nil {
				w.metrics.IncFailure(err)
				w.log.Warn("population row failed",
					zap.String("submission_id", row.ID.String()),
					zap.String("reason", metrics.ClassifyWorkerReason(err)),
					zap.Error(err),
				)
				return nil
			}

			w.metrics.IncProcessed(summary.Status)
			processed.Add(1)
			return nil
		})
	}
	// Row failures are logged and never abort the batch.
	_ = g.Wait()

	w.log.Debug("population batch finished",
		zap.Int("candidates", len(rows)),
		zap.Int64("processed", processed.Load()),
	)
	return len(rows), int(processed.Load()), nil
}
