package worker

import (
	"context"
	"sync/atomic"
	"testing"
)

type countingJob struct {
	counter *atomic.Int32
}

type countingResult struct {
	err error
}

func (r *countingResult) GetError() error { return r.err }

func (j *countingJob) Execute(ctx context.Context) Result {
	j.counter.Add(1)
	return &countingResult{}
}

func TestPool_ExecutesAllJobs(t *testing.T) {
	pool := NewPool(4)
	pool.Start(context.Background())

	var executed atomic.Int32
	const jobs = 20
	for i := 0; i < jobs; i++ {
		if !pool.Submit(context.Background(), &countingJob{counter: &executed}) {
			t.Fatalf("Submit %d refused", i)
		}
	}

	results := pool.Wait()
	if len(results) != jobs {
		t.Errorf("got %d results, want %d", len(results), jobs)
	}
	if got := executed.Load(); got != jobs {
		t.Errorf("executed %d jobs, want %d", got, jobs)
	}
}

func TestPool_SubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(2)
	pool.Start(ctx)
	cancel()

	var executed atomic.Int32
	if pool.Submit(ctx, &countingJob{counter: &executed}) {
		t.Error("Submit accepted a job after cancellation")
	}
}

func TestPool_ZeroWorkersClampedToOne(t *testing.T) {
	pool := NewPool(0)
	pool.Start(context.Background())

	var executed atomic.Int32
	pool.Submit(context.Background(), &countingJob{counter: &executed})
	pool.Wait()

	if executed.Load() != 1 {
		t.Error("job never ran on clamped pool")
	}
}
