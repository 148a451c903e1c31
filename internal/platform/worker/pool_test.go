package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolSubmitAndWait(t *testing.T) {
	pool := NewPool[int](context.Background(), 4, 10)
	defer pool.Close()

	jobs := make([]Job[int], 10)
	for i := 0; i < 10; i++ {
		n := i
		jobs[i] = Job[int]{
			ID: fmt.Sprintf("job-%d", n),
			Execute: func(ctx context.Context) (int, error) {
				return n * 2, nil
			},
		}
	}

	results := pool.SubmitAndWait(jobs)
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}

	values := make([]int, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("job %s failed: %v", r.JobID, r.Err)
		}
		values = append(values, r.Value)
	}
	sort.Ints(values)
	for i, v := range values {
		if v != i*2 {
			t.Fatalf("missing result: expected %d at position %d, got %d", i*2, i, v)
		}
	}
}

func TestPoolSmallQueueDoesNotDeadlock(t *testing.T) {
	pool := NewPool[int](context.Background(), 2, 1)
	defer pool.Close()

	jobs := make([]Job[int], 20)
	for i := 0; i < 20; i++ {
		n := i
		jobs[i] = Job[int]{
			ID: fmt.Sprintf("job-%d", n),
			Execute: func(ctx context.Context) (int, error) {
				return n, nil
			},
		}
	}

	done := make(chan []Result[int], 1)
	go func() { done <- pool.SubmitAndWait(jobs) }()

	select {
	case results := <-done:
		if len(results) != 20 {
			t.Fatalf("expected 20 results, got %d", len(results))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SubmitAndWait deadlocked with queue smaller than job count")
	}
}

func TestPoolPropagatesJobErrors(t *testing.T) {
	pool := NewPool[string](context.Background(), 2, 4)
	defer pool.Close()

	wantErr := errors.New("rpc unavailable")
	results := pool.SubmitAndWait([]Job[string]{
		{ID: "ok", Execute: func(ctx context.Context) (string, error) { return "fine", nil }},
		{ID: "bad", Execute: func(ctx context.Context) (string, error) { return "", wantErr }},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	var sawErr bool
	for _, r := range results {
		if r.JobID == "bad" {
			if !errors.Is(r.Err, wantErr) {
				t.Fatalf("expected job error, got %v", r.Err)
			}
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatal("error result not returned")
	}
}

func TestPoolSubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool[int](ctx, 2, 4)

	cancel()
	time.Sleep(10 * time.Millisecond)

	err := pool.Submit(Job[int]{
		ID:      "late",
		Execute: func(ctx context.Context) (int, error) { return 0, nil },
	})
	if err == nil {
		t.Fatal("expected error submitting to cancelled pool")
	}
}

func TestPoolConcurrency(t *testing.T) {
	pool := NewPool[int](context.Background(), 4, 10)
	defer pool.Close()

	var running int32
	var peak int32

	jobs := make([]Job[int], 8)
	for i := range jobs {
		jobs[i] = Job[int]{
			ID: fmt.Sprintf("job-%d", i),
			Execute: func(ctx context.Context) (int, error) {
				cur := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return 0, nil
			},
		}
	}

	pool.SubmitAndWait(jobs)

	if got := atomic.LoadInt32(&peak); got < 2 {
		t.Fatalf("expected concurrent execution, peak was %d", got)
	}
}
