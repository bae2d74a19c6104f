// Package worker provides the bounded-concurrency primitives shared by
// the pipeline: a worker pool for per-item processing and the rate
// limiters guarding external services.
package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool executes jobs on a fixed number of workers. Cancelling the
// context passed to Start stops intake; jobs already picked up run to
// completion under their own context handling.
type Pool struct {
	workers   int
	jobQueue  chan Job
	results   chan Result
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:  workers,
		jobQueue: make(chan Job, workers*2), // Buffered to prevent blocking
		results:  make(chan Result, workers*2),
	}
}

// Start starts the worker pool under the given context.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.Execute(ctx)
			select {
			case p.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job for execution. Returns false once the pool's
// context is cancelled, so callers can stop scheduling cleanly.
func (p *Pool) Submit(ctx context.Context, job Job) bool {
	select {
	case <-ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Wait closes intake, waits for in-flight jobs and returns all results.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}

	return results
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
