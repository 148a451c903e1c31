// Package worker provides a generic worker pool for concurrent task execution.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work to be executed by a worker.
type Job[T any] struct {
	// ID identifies the job in results and logs
	ID string
	// Execute runs the work. It receives the pool context.
	Execute func(ctx context.Context) (T, error)
}

// Result is the outcome of a job execution.
type Result[T any] struct {
	JobID string
	Value T
	Err   error
}

// Pool processes jobs concurrently with a fixed number of worker goroutines.
type Pool[T any] struct {
	workers  int
	jobQueue chan Job[T]
	results  chan Result[T]
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewPool creates a worker pool. Workers start immediately and wait for jobs.
func NewPool[T any](ctx context.Context, workers int, queueSize int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool[T]{
		workers:  workers,
		jobQueue: make(chan Job[T], queueSize),
		results:  make(chan Result[T], queueSize),
		ctx:      poolCtx,
		cancel:   cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			value, err := job.Execute(p.ctx)
			select {
			case p.results <- Result[T]{JobID: job.ID, Value: value, Err: err}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit adds a job to the queue. Blocks while the queue is full.
// Returns an error if the pool is closed or its context is cancelled.
func (p *Pool[T]) Submit(job Job[T]) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- job:
		return nil
	}
}

// SubmitAndWait submits jobs and waits for all results.
// Results arrive in completion order, not submission order.
func (p *Pool[T]) SubmitAndWait(jobs []Job[T]) []Result[T] {
	// Submission runs concurrently so collection can drain the results
	// channel while the queue is full.
	submitted := make(chan int, 1)
	go func() {
		n := 0
		for _, job := range jobs {
			if err := p.Submit(job); err != nil {
				break
			}
			n++
		}
		submitted <- n
	}()

	results := make([]Result[T], 0, len(jobs))
	expected := len(jobs)
	for len(results) < expected {
		select {
		case <-p.ctx.Done():
			return results
		case n := <-submitted:
			expected = n
		case result := <-p.results:
			results = append(results, result)
		}
	}

	return results
}

// Results returns the channel of completed job results.
func (p *Pool[T]) Results() <-chan Result[T] {
	return p.results
}

// Close stops accepting jobs and waits for workers to finish.
func (p *Pool[T]) Close() {
	p.cancel()
	close(p.jobQueue)
	p.wg.Wait()
	close(p.results)
}

// Workers returns the number of workers in the pool.
func (p *Pool[T]) Workers() int {
	return p.workers
}
