// Package queue layers at-least-once delivery semantics on the store's
// durable job table: claim with visibility timeout, bounded retries with
// exponential backoff, and a dead letter lane for jobs that can never
// succeed.
package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/propfin/internal/config"
	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/resilience"
	"github.com/sells-group/propfin/internal/store"
)

// Queue mediates job scheduling for the document pipeline.
type Queue struct {
	store store.Store
	cfg   config.QueueConfig
	log   *zap.Logger
}

// New builds a Queue, applying defaults for zero config values.
func New(st store.Store, cfg config.QueueConfig) *Queue {
	if cfg.VisibilityTimeoutSecs <= 0 {
		cfg.VisibilityTimeoutSecs = 300
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoffSecs <= 0 {
		cfg.InitialBackoffSecs = 5
	}
	if cfg.MaxBackoffSecs <= 0 {
		cfg.MaxBackoffSecs = 300
	}
	return &Queue{
		store: st,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "queue")),
	}
}

// Enqueue schedules processing for a document. Enqueuing a document that
// already has a live job returns that job unchanged.
func (q *Queue) Enqueue(ctx context.Context, documentID, storageKey string) (*model.Job, error) {
	job, err := q.store.EnqueueJob(ctx, documentID, storageKey)
	if err != nil {
		return nil, eris.Wrap(err, "queue: enqueue")
	}
	q.log.Info("job enqueued",
		zap.Int64("job_id", job.ID),
		zap.String("document_id", documentID),
	)
	return job, nil
}

// Claim hands the next visible job to workerID, or nil when the queue is
// drained. The job stays invisible to other workers for the configured
// visibility timeout; a worker that dies mid-job forfeits the claim when
// the timeout lapses.
func (q *Queue) Claim(ctx context.Context, workerID string) (*model.Job, error) {
	job, err := q.store.ClaimJob(ctx, workerID, q.cfg.VisibilityTimeout())
	if err != nil {
		return nil, eris.Wrap(err, "queue: claim")
	}
	return job, nil
}

// Ack marks a claimed job done.
func (q *Queue) Ack(ctx context.Context, job *model.Job) error {
	return eris.Wrap(q.store.AckJob(ctx, job.ID), "queue: ack")
}

// Fail records a processing failure and decides the job's fate: terminal
// errors and exhausted attempts dead-letter immediately; anything else is
// returned to the queue with exponential backoff. Reports whether the
// job was dead-lettered.
func (q *Queue) Fail(ctx context.Context, job *model.Job, cause error) (bool, error) {
	msg := cause.Error()

	if resilience.IsTerminal(cause) || job.Attempts >= q.cfg.MaxAttempts {
		q.log.Warn("job dead-lettered",
			zap.Int64("job_id", job.ID),
			zap.String("document_id", job.DocumentID),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause),
		)
		if err := q.store.DeadLetterJob(ctx, job.ID, msg); err != nil {
			return false, eris.Wrap(err, "queue: dead-letter")
		}
		return true, nil
	}

	backoff := q.backoff(job.Attempts)
	q.log.Info("job scheduled for retry",
		zap.Int64("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
		zap.Duration("backoff", backoff),
		zap.Error(cause),
	)
	if err := q.store.RetryJob(ctx, job.ID, backoff, msg); err != nil {
		return false, eris.Wrap(err, "queue: retry")
	}
	return false, nil
}

// Stats reports queue depth per status.
func (q *Queue) Stats(ctx context.Context) (*model.QueueStats, error) {
	stats, err := q.store.QueueStats(ctx)
	return stats, eris.Wrap(err, "queue: stats")
}

// MaxAttempts exposes the configured attempt budget.
func (q *Queue) MaxAttempts() int {
	return q.cfg.MaxAttempts
}

func (q *Queue) backoff(attempts int) time.Duration {
	return resilience.Backoff(attempts-1, resilience.RetryConfig{
		MaxAttempts:    q.cfg.MaxAttempts,
		InitialBackoff: time.Duration(q.cfg.InitialBackoffSecs) * time.Second,
		MaxBackoff:     time.Duration(q.cfg.MaxBackoffSecs) * time.Second,
		JitterFraction: 0.25,
	})
}
