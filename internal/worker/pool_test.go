package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func delayedWork(delay time.Duration, fail bool, calls *atomic.Int32) Work[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		if fail {
			return "", errors.New("simulated failure")
		}
		return "ok", nil
	}
}

func TestPool_BasicExecution(t *testing.T) {
	var calls atomic.Int32
	pool := New[string](Config{Workers: 2})

	tasks := []Task[string]{
		{ID: "a", Work: delayedWork(10*time.Millisecond, false, &calls)},
		{ID: "b", Work: delayedWork(10*time.Millisecond, false, &calls)},
		{ID: "c", Work: delayedWork(10*time.Millisecond, false, &calls)},
	}

	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("expected %d results, got %d", len(tasks), len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("unexpected error for %s: %v", r.ID, r.Err)
		}
		if r.Value != "ok" {
			t.Errorf("expected value ok for %s, got %q", r.ID, r.Value)
		}
	}
	if calls.Load() != int32(len(tasks)) {
		t.Errorf("expected %d calls, got %d", len(tasks), calls.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	var calls atomic.Int32
	pool := New[string](Config{Workers: 4})

	tasks := make([]Task[string], 8)
	for i := range tasks {
		tasks[i] = Task[string]{ID: string(rune('a' + i)), Work: delayedWork(50*time.Millisecond, false, &calls)}
	}

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	if elapsed > 200*time.Millisecond {
		t.Errorf("expected parallel execution in ~100ms, took %v", elapsed)
	}
	if len(results) != len(tasks) {
		t.Errorf("expected %d results, got %d", len(tasks), len(results))
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	var calls atomic.Int32
	pool := New[string](Config{Workers: 2})

	tasks := []Task[string]{
		{ID: "a", Work: delayedWork(10*time.Millisecond, false, &calls)},
		{ID: "fails", Work: delayedWork(10*time.Millisecond, true, &calls)},
		{ID: "c", Work: delayedWork(10*time.Millisecond, false, &calls)},
	}

	results := pool.Run(context.Background(), tasks)

	var successCount, failCount int
	for _, r := range results {
		if r.Err != nil {
			failCount++
			if r.ID != "fails" {
				t.Errorf("unexpected failure for %s", r.ID)
			}
		} else {
			successCount++
		}
	}
	if successCount != 2 {
		t.Errorf("expected 2 successes, got %d", successCount)
	}
	if failCount != 1 {
		t.Errorf("expected 1 failure, got %d", failCount)
	}
}

func TestPool_Cancellation(t *testing.T) {
	var calls atomic.Int32
	pool := New[string](Config{Workers: 2})

	tasks := make([]Task[string], 10)
	for i := range tasks {
		tasks[i] = Task[string]{ID: string(rune('a' + i)), Work: delayedWork(100*time.Millisecond, false, &calls)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Errorf("expected early cancellation, took %v", elapsed)
	}

	var cancelledCount int
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, context.Canceled) {
			cancelledCount++
		}
	}
	t.Logf("completed with %d results (%d cancelled) in %v", len(results), cancelledCount, elapsed)
}

func TestPool_ProgressCallback(t *testing.T) {
	var calls atomic.Int32
	var progressCalls atomic.Int32
	var lastCompleted, lastTotal int

	pool := New[string](Config{
		Workers: 2,
		OnProgress: func(completed, total, failed int) {
			progressCalls.Add(1)
			lastCompleted = completed
			lastTotal = total
		},
	})

	tasks := []Task[string]{
		{ID: "a", Work: delayedWork(10*time.Millisecond, false, &calls)},
		{ID: "b", Work: delayedWork(10*time.Millisecond, false, &calls)},
		{ID: "c", Work: delayedWork(10*time.Millisecond, false, &calls)},
	}

	pool.Run(context.Background(), tasks)

	if progressCalls.Load() == 0 {
		t.Error("expected progress callbacks, got none")
	}
	if lastCompleted != len(tasks) {
		t.Errorf("expected lastCompleted=%d, got %d", len(tasks), lastCompleted)
	}
	if lastTotal != len(tasks) {
		t.Errorf("expected lastTotal=%d, got %d", len(tasks), lastTotal)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	pool := New[string](Config{Workers: 2})
	results := pool.Run(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results for empty tasks, got %d", len(results))
	}
}
