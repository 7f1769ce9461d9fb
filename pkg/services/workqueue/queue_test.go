package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/qbank-labs/question-engine/pkg/llm"
)

type fakeTask struct {
	BaseTask
	execute func(ctx context.Context, enqueuer TaskEnqueuer) error
}

func newFakeTask(name string, requiresLLM bool, fn func(ctx context.Context, enqueuer TaskEnqueuer) error) *fakeTask {
	return &fakeTask{BaseTask: NewBaseTask(name, requiresLLM), execute: fn}
}

func (t *fakeTask) Execute(ctx context.Context, enqueuer TaskEnqueuer) error {
	return t.execute(ctx, enqueuer)
}

func TestQueueRunsTasksToCompletion(t *testing.T) {
	q := New(zap.NewNop())

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		q.Enqueue(newFakeTask("extract", false, func(ctx context.Context, _ TaskEnqueuer) error {
			ran.Add(1)
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if ran.Load() != 3 {
		t.Fatalf("ran %d tasks, want 3", ran.Load())
	}
}

func TestQueueThrottlesLLMTasks(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledLLMStrategy(2)))

	var mu sync.Mutex
	running, peak := 0, 0

	for i := 0; i < 6; i++ {
		q.Enqueue(newFakeTask("generate", true, func(ctx context.Context, _ TaskEnqueuer) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if peak > 2 {
		t.Fatalf("peak concurrent LLM tasks = %d, want <= 2", peak)
	}
}

func TestQueueRetriesTransientErrors(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
	}))

	var attempts atomic.Int32
	q.Enqueue(newFakeTask("generate", true, func(ctx context.Context, _ TaskEnqueuer) error {
		if attempts.Add(1) < 3 {
			return llm.NewError(llm.ErrorTypeEndpoint, "server error", true, nil)
		}
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("attempts = %d, want 3", attempts.Load())
	}
}

func TestQueueDoesNotRetryPermanentErrors(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(RetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1.0,
	}))

	var attempts atomic.Int32
	permanent := errors.New("invalid question state")
	q.Enqueue(newFakeTask("extract", false, func(ctx context.Context, _ TaskEnqueuer) error {
		attempts.Add(1)
		return permanent
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := q.Wait(ctx)
	if !errors.Is(err, permanent) {
		t.Fatalf("Wait error = %v, want the task error", err)
	}
	if attempts.Load() != 1 {
		t.Fatalf("attempts = %d, want 1 (no retries)", attempts.Load())
	}
	if !q.HasFailures() {
		t.Fatal("queue should report failures")
	}
}

func TestTasksCanEnqueueFollowUps(t *testing.T) {
	q := New(zap.NewNop())

	var followUpRan atomic.Bool
	q.Enqueue(newFakeTask("extract", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		enqueuer.Enqueue(newFakeTask("generate", true, func(ctx context.Context, _ TaskEnqueuer) error {
			followUpRan.Store(true)
			return nil
		}))
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}

	// The follow-up may land after the first batch drains; wait again.
	deadline := time.Now().Add(time.Second)
	for !followUpRan.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !followUpRan.Load() {
		t.Fatal("follow-up task never ran")
	}
}

func TestCancelStopsPendingTasks(t *testing.T) {
	q := New(zap.NewNop())

	started := make(chan struct{})
	release := make(chan struct{})
	var laterRan atomic.Bool

	q.Enqueue(newFakeTask("slow", false, func(ctx context.Context, _ TaskEnqueuer) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	q.Enqueue(newFakeTask("later", false, func(ctx context.Context, _ TaskEnqueuer) error {
		laterRan.Store(true)
		return nil
	}))

	<-started
	q.Cancel()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Wait(ctx)

	if laterRan.Load() {
		t.Fatal("pending task ran after cancel")
	}
	for _, snap := range q.Tasks() {
		if snap.Name == "later" && snap.Status != TaskStatusCancelled {
			t.Fatalf("pending task status = %s, want cancelled", snap.Status)
		}
	}
}
