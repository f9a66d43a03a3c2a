package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/queue"
	"github.com/yungbote/intellimix-backend/internal/jobs/runtime"
	"github.com/yungbote/intellimix-backend/internal/observability"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

// DepthGauge receives the queue depth after every poll.
type DepthGauge interface {
	SetQueueDepth(n int64)
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repos    mix.Repos
	runs     *runs.Registry
	queue    queue.Queue
	registry *runtime.Registry
	gauge    DepthGauge

	concurrency int
	pollTimeout time.Duration
	wg          sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repos mix.Repos, reg *runs.Registry, q queue.Queue, registry *runtime.Registry, gauge DepthGauge) *Worker {
	return &Worker{
		db:          db,
		log:         baseLog.With("component", "RunWorker"),
		repos:       repos,
		runs:        reg,
		queue:       q,
		registry:    registry,
		gauge:       gauge,
		concurrency: envutil.IntRange("WORKER_CONCURRENCY", 4, 1, 64),
		pollTimeout: 5 * time.Second,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting run worker pool", "concurrency", w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop has returned after ctx was canceled.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		}
		item, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Warn("Dequeue failed", "worker_id", workerID, "error", err)
			sleep(ctx, time.Second)
			continue
		}
		if w.gauge != nil {
			if n, err := w.queue.Depth(ctx); err == nil {
				w.gauge.SetQueueDepth(n)
			}
		}
		if item == nil {
			continue
		}
		w.Process(ctx, *item)
	}
}

// Process executes one dequeued item to completion. Terminal runs are
// skipped so a duplicate delivery is harmless.
func (w *Worker) Process(ctx context.Context, item queue.Item) {
	run, err := w.repos.Runs.GetByID(dbctx.Context{Ctx: ctx}, item.RunID)
	if err != nil {
		if errors.Is(err, mix.ErrNotFound) {
			w.log.Warn("Dequeued unknown run", "run_id", item.RunID)
			return
		}
		w.log.Error("Load run failed", "run_id", item.RunID, "error", err)
		return
	}
	if run.Terminal() {
		w.log.Debug("Skipping terminal run", "run_id", run.ID, "status", run.Status)
		w.runs.Close(run.ID)
		return
	}

	ctx, span := observability.StartRunSpan(ctx, run.ID.String(), run.Kind, item.Attempt)
	defer span.End()

	jc := runtime.NewContext(ctx, w.db, run, item.Attempt, w.repos, w.runs, w.queue, w.log)
	h, ok := w.registry.Get(run.Kind)
	if !ok {
		w.log.Warn("No handler registered for run_kind", "run_kind", run.Kind, "run_id", run.ID)
		jc.Fail("dispatch", &missingHandlerError{Kind: run.Kind})
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Run handler panic",
					"run_id", run.ID,
					"run_kind", run.Kind,
					"panic", r,
				)
				jc.Fail("panic", errFromRecover(r))
			}
		}()

		if runErr := h.Run(jc); runErr != nil {
			// Handlers usually fail the run themselves; this is a safety net.
			if !jc.Done() {
				jc.Fail("run", runErr)
			}
			return
		}
		if !jc.Done() {
			jc.Fail("run", fmt.Errorf("%s handler returned without finishing the run", run.Kind))
		}
	}()
}

type missingHandlerError struct{ Kind string }

func (e *missingHandlerError) Error() string { return "no handler registered for run_kind=" + e.Kind }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return "Mix generation failed unexpectedly." }

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
