package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/propfin/internal/config"
	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/queue"
	"github.com/sells-group/propfin/internal/store"
)

// Worker runs a pool of claim loops against the job queue. Each loop
// claims one job at a time, processes it to completion, and either acks
// or reports the failure back to the queue. Claim polling is paced by a
// shared rate limiter so an empty queue doesn't turn into a busy loop.
type Worker struct {
	queue     *queue.Queue
	store     store.Store
	processor *Processor
	cfg       config.WorkerConfig
	log       *zap.Logger

	processed atomic.Int64
	retried   atomic.Int64
	dead      atomic.Int64
}

// NewWorker builds a worker pool over the given queue and processor.
func NewWorker(q *queue.Queue, st store.Store, proc *Processor, cfg config.WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollRatePerS <= 0 {
		cfg.PollRatePerS = 2
	}
	return &Worker{
		queue:     q,
		store:     st,
		processor: proc,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "worker")),
	}
}

// Run blocks until ctx is cancelled, continuously claiming and
// processing jobs with cfg.Concurrency loops.
func (w *Worker) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(w.cfg.PollRatePerS), 1)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			return w.loop(ctx, limiter, workerID)
		})
	}

	err := g.Wait()
	w.log.Info("worker pool stopped",
		zap.Int64("processed", w.processed.Load()),
		zap.Int64("retried", w.retried.Load()),
		zap.Int64("dead_lettered", w.dead.Load()),
	)
	if err != nil && !eris.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Drain processes jobs until the queue yields nothing claimable, then
// returns. Used by the one-shot process command.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		job, err := w.queue.Claim(ctx, "drain-0")
		if err != nil {
			return eris.Wrap(err, "worker: claim")
		}
		if job == nil {
			return nil
		}
		w.handle(ctx, job, w.log.With(zap.String("worker_id", "drain-0")))
	}
}

func (w *Worker) loop(ctx context.Context, limiter *rate.Limiter, workerID string) error {
	wLog := w.log.With(zap.String("worker_id", workerID))
	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		job, err := w.queue.Claim(ctx, workerID)
		if err != nil {
			// Claim failures are queue/store hiccups; back off via the
			// limiter and keep the loop alive.
			wLog.Warn("claim failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}
		w.handle(ctx, job, wLog)
	}
}

// handle runs one claimed job through the processor and settles it with
// the queue. Job-level failures never abort the loop.
func (w *Worker) handle(ctx context.Context, job *model.Job, wLog *zap.Logger) {
	jLog := wLog.With(zap.Int64("job_id", job.ID), zap.String("document_id", job.DocumentID))

	doc, err := w.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		jLog.Error("load document", zap.Error(err))
		w.settle(ctx, job, err, jLog)
		return
	}

	if err := w.processor.Process(ctx, doc); err != nil {
		jLog.Warn("processing failed", zap.Int("attempt", job.Attempts), zap.Error(err))
		w.settle(ctx, job, err, jLog)
		return
	}

	if err := w.queue.Ack(ctx, job); err != nil {
		jLog.Error("ack", zap.Error(err))
		return
	}
	w.processed.Add(1)
}

// settle reports a failed attempt to the queue and, when the job is
// done for good, marks the document failed so its state is queryable.
func (w *Worker) settle(ctx context.Context, job *model.Job, cause error, jLog *zap.Logger) {
	dead, err := w.queue.Fail(ctx, job, cause)
	if err != nil {
		jLog.Error("settle job", zap.Error(err))
		return
	}
	if !dead {
		w.retried.Add(1)
		return
	}
	w.dead.Add(1)
	if err := w.store.FailDocument(ctx, job.DocumentID, eris.ToString(cause, false)); err != nil {
		jLog.Error("mark document failed", zap.Error(err))
	}
}
