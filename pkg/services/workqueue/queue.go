// Package workqueue runs pipeline tasks in-process with bounded LLM
// concurrency and automatic retry of transient failures.
package workqueue

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qbank-labs/question-engine/pkg/llm"
)

// RetryConfig configures retry behavior for failed tasks. Only errors that
// classify as retryable (see llm.IsRetryable) are retried.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default backoff schedule:
// 2s, 4s, 8s, 16s, then 30s capped, up to 8 retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     8,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Queue manages task execution with a pluggable concurrency strategy.
type Queue struct {
	mu        sync.Mutex
	tasks     []*taskState
	cancelled bool

	strategy    ConcurrencyStrategy
	retryConfig RetryConfig

	done chan struct{}
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithStrategy sets the concurrency strategy.
func WithStrategy(strategy ConcurrencyStrategy) QueueOption {
	return func(q *Queue) {
		if strategy != nil {
			q.strategy = strategy
		}
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(config RetryConfig) QueueOption {
	return func(q *Queue) {
		q.retryConfig = config
	}
}

// New creates a work queue. Without options it serializes LLM tasks and
// data tasks independently.
func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		strategy:    NewSerializedStrategy(),
		retryConfig: DefaultRetryConfig(),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("workqueue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a task and starts it as soon as the strategy allows.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelled {
		q.logger.Warn("queue cancelled, ignoring enqueue",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
		return
	}

	// Reopen the done channel if a previous batch already drained.
	select {
	case <-q.done:
		q.done = make(chan struct{})
	default:
	}

	q.tasks = append(q.tasks, newTaskState(task))
	q.logger.Info("task enqueued",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()),
		zap.Bool("requires_llm", task.RequiresLLM()))

	q.tryStartTasksLocked()
}

// tryStartTasksLocked starts every pending task the strategy permits.
// Must be called with the lock held.
func (q *Queue) tryStartTasksLocked() {
	if q.cancelled {
		return
	}

	for _, ts := range q.tasks {
		if ts.getStatus() != TaskStatusPending {
			continue
		}

		isLLM := ts.task.RequiresLLM()
		if isLLM && !q.strategy.CanStartLLM() {
			continue
		}
		if !isLLM && !q.strategy.CanStartData() {
			continue
		}

		if isLLM {
			q.strategy.OnStartLLM()
		} else {
			q.strategy.OnStartData()
		}
		ts.setStatus(TaskStatusRunning)

		q.logger.Info("starting task",
			zap.String("task_id", ts.task.ID()),
			zap.String("task_name", ts.task.Name()))

		q.wg.Add(1)
		go q.runTask(ts)
	}
}

// runTask executes a task, retrying transient errors with backoff.
func (q *Queue) runTask(ts *taskState) {
	defer q.wg.Done()

	var lastErr error

	for attempt := 0; attempt <= q.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := q.backoff(attempt)
			q.logger.Info("retrying task after backoff",
				zap.String("task_id", ts.task.ID()),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))

			select {
			case <-q.ctx.Done():
				q.completeTask(ts, q.ctx.Err())
				return
			case <-time.After(backoff):
			}
		}

		err := ts.task.Execute(q.ctx, q)
		if err == nil {
			q.completeTask(ts, nil)
			return
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			break
		}
		if !llm.IsRetryable(err) {
			q.logger.Warn("non-retryable error, failing task",
				zap.String("task_id", ts.task.ID()),
				zap.String("task_name", ts.task.Name()),
				zap.Error(err))
			break
		}

		attempts := ts.incrementAttempts()
		if attempt >= q.retryConfig.MaxRetries {
			q.logger.Error("task failed after max retries",
				zap.String("task_id", ts.task.ID()),
				zap.Int("attempts", attempts),
				zap.Error(err))
			break
		}
		q.logger.Warn("retryable error encountered",
			zap.String("task_id", ts.task.ID()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	q.completeTask(ts, lastErr)
}

// backoff computes exponential backoff with ±10% jitter.
func (q *Queue) backoff(attempt int) time.Duration {
	d := float64(q.retryConfig.InitialBackoff) *
		math.Pow(q.retryConfig.BackoffFactor, float64(attempt-1))
	if d > float64(q.retryConfig.MaxBackoff) {
		d = float64(q.retryConfig.MaxBackoff)
	}
	jitter := d * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(d + jitter)
}

func (q *Queue) completeTask(ts *taskState, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ts.task.RequiresLLM() {
		q.strategy.OnCompleteLLM()
	} else {
		q.strategy.OnCompleteData()
	}

	switch {
	case err == nil:
		ts.setStatus(TaskStatusCompleted)
		q.logger.Info("task completed",
			zap.String("task_id", ts.task.ID()),
			zap.String("task_name", ts.task.Name()))
	case errors.Is(err, context.Canceled):
		ts.setStatus(TaskStatusCancelled)
		q.logger.Info("task cancelled",
			zap.String("task_id", ts.task.ID()),
			zap.String("task_name", ts.task.Name()))
	default:
		ts.setStatus(TaskStatusFailed)
		ts.setError(err)
		q.logger.Error("task failed",
			zap.String("task_id", ts.task.ID()),
			zap.String("task_name", ts.task.Name()),
			zap.Error(err))
	}

	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
		return
	}
	q.tryStartTasksLocked()
}

func (q *Queue) allTasksDoneLocked() bool {
	for _, ts := range q.tasks {
		status := ts.getStatus()
		if status == TaskStatusPending || status == TaskStatusRunning {
			return false
		}
	}
	return true
}

func (q *Queue) closeDoneLocked() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// Tasks returns a snapshot of every queued task.
func (q *Queue) Tasks() []TaskSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshots := make([]TaskSnapshot, len(q.tasks))
	for i, ts := range q.tasks {
		snapshots[i] = ts.snapshot()
	}
	return snapshots
}

// Wait blocks until all tasks reach a terminal state or ctx is done.
// Returns the first task failure, if any.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return nil
	}
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		q.mu.Lock()
		defer q.mu.Unlock()
		for _, ts := range q.tasks {
			if ts.getStatus() == TaskStatusFailed {
				return ts.getError()
			}
		}
		return nil
	case <-ctx.Done():
		q.Cancel()
		return ctx.Err()
	}
}

// Cancel stops accepting new tasks, signals running ones to stop, and
// marks pending tasks cancelled.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelled {
		return
	}
	q.cancelled = true
	q.logger.Info("queue cancelled, signaling running tasks to stop")
	q.cancel()

	for _, ts := range q.tasks {
		if ts.getStatus() == TaskStatusPending {
			ts.setStatus(TaskStatusCancelled)
		}
	}
	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
	}
}

// HasFailures reports whether any task failed.
func (q *Queue) HasFailures() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ts := range q.tasks {
		if ts.getStatus() == TaskStatusFailed {
			return true
		}
	}
	return false
}
