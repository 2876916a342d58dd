package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

const (
	// maxAttempts is how many deliveries a job gets before dead-lettering.
	maxAttempts = 3
	// pollInterval is how often an idle worker checks for due jobs.
	pollInterval = 250 * time.Millisecond
)

// Job is one scheduled unit of work. Keys are unique among pending jobs;
// re-enqueueing an existing key keeps the earlier deadline.
type Job struct {
	Key      string    `json:"key"`
	Payload  []byte    `json:"payload"`
	RunAt    time.Time `json:"run_at"`
	Attempts int       `json:"attempts"`
}

// Handler processes one job. Delivery is at-least-once; handlers must be
// idempotent. Returning an error schedules a retry until maxAttempts.
type Handler func(ctx context.Context, job Job) error

// Store is the durable backing for scheduled jobs.
type Store interface {
	// Add schedules the job. With keepEarliest, an existing pending key wins
	// and the call is a no-op; otherwise the job replaces the pending entry.
	Add(ctx context.Context, job Job, keepEarliest bool) error
	// Cancel removes every pending job whose key starts with prefix and
	// returns how many were removed. After Cancel returns, no worker will
	// begin one of the removed jobs.
	Cancel(ctx context.Context, prefix string) (int, error)
	// Claim atomically removes and returns one job due at or before now,
	// or nil when none are due.
	Claim(ctx context.Context, now time.Time) (*Job, error)
	// PendingKeys lists the pending keys with the given prefix.
	PendingKeys(ctx context.Context, prefix string) ([]string, error)
}

// DeadLetterer receives jobs that exhausted their delivery attempts.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, job Job, cause error) error
}

// Queue is a deadline-ordered delayed job queue with cancel-by-prefix.
type Queue struct {
	store      Store
	deadLetter DeadLetterer
	logger     *logging.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithDeadLetterer routes exhausted jobs to the given sink.
func WithDeadLetterer(dl DeadLetterer) Option {
	return func(q *Queue) { q.deadLetter = dl }
}

// New creates a queue over the provided store.
func New(store Store, logger *logging.Logger, opts ...Option) *Queue {
	if store == nil {
		panic("jobqueue: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	q := &Queue{store: store, logger: logger}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules payload under key for delivery after delay. If the key is
// already pending the earlier deadline is kept and the call is a no-op.
func (q *Queue) Enqueue(ctx context.Context, key string, payload []byte, delay time.Duration) error {
	if key == "" {
		return errors.New("jobqueue: key required")
	}
	if delay < 0 {
		delay = 0
	}
	job := Job{
		Key:     key,
		Payload: payload,
		RunAt:   time.Now().UTC().Add(delay),
	}
	if err := q.store.Add(ctx, job, true); err != nil {
		return fmt.Errorf("jobqueue: enqueue %s: %w", key, err)
	}
	return nil
}

// Cancel removes every pending job whose key starts with prefix.
func (q *Queue) Cancel(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("jobqueue: prefix required")
	}
	removed, err := q.store.Cancel(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("jobqueue: cancel %s: %w", prefix, err)
	}
	if removed > 0 {
		q.logger.Info("jobqueue: cancelled pending jobs", "prefix", prefix, "count", removed)
	}
	return removed, nil
}

// Pending lists the pending job keys under prefix, for admin introspection.
func (q *Queue) Pending(ctx context.Context, prefix string) ([]string, error) {
	keys, err := q.store.PendingKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: pending %s: %w", prefix, err)
	}
	return keys, nil
}

// Run starts workers goroutines delivering due jobs to handler, blocking until
// ctx is cancelled. Handler panics and errors are contained per job.
func (q *Queue) Run(ctx context.Context, workers int, handler Handler) {
	if workers <= 0 {
		workers = 5
	}
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func(worker int) {
			defer func() { done <- struct{}{} }()
			q.workerLoop(ctx, worker, handler)
		}(i)
	}
	for i := 0; i < workers; i++ {
		<-done
	}
}

func (q *Queue) workerLoop(ctx context.Context, worker int, handler Handler) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			job, err := q.store.Claim(ctx, time.Now().UTC())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				q.logger.Error("jobqueue: claim failed", "worker", worker, "error", err)
				break
			}
			if job == nil {
				break
			}
			q.deliver(ctx, worker, *job, handler)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, worker int, job Job, handler Handler) {
	err := q.runHandler(ctx, job, handler)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// shutting down; put the job back untouched for the next process
		if addErr := q.store.Add(context.WithoutCancel(ctx), job, true); addErr != nil {
			q.logger.Error("jobqueue: failed to return job on shutdown", "key", job.Key, "error", addErr)
		}
		return
	}

	job.Attempts++
	if job.Attempts >= maxAttempts {
		q.logger.Error("jobqueue: job dead-lettered",
			"worker", worker, "key", job.Key, "attempts", job.Attempts, "error", err)
		if q.deadLetter != nil {
			if dlErr := q.deadLetter.DeadLetter(ctx, job, err); dlErr != nil {
				q.logger.Error("jobqueue: dead-letter delivery failed", "key", job.Key, "error", dlErr)
			}
		}
		return
	}

	job.RunAt = time.Now().UTC().Add(retryBackoff(job.Attempts))
	q.logger.Warn("jobqueue: job failed, retrying",
		"worker", worker, "key", job.Key, "attempts", job.Attempts, "run_at", job.RunAt, "error", err)
	if addErr := q.store.Add(ctx, job, false); addErr != nil {
		q.logger.Error("jobqueue: failed to schedule retry", "key", job.Key, "error", addErr)
	}
}

func (q *Queue) runHandler(ctx context.Context, job Job, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jobqueue: handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

// retryBackoff grows the delay per attempt with jitter so retries spread out.
func retryBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 5 * time.Second
	jitter := time.Duration(rand.Int63n(int64(2 * time.Second)))
	return base + jitter
}
