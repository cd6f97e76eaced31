package workers

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// WorkerPool caps how many jobs run at once. Callers start one goroutine
// per job and the pool decides when each may proceed, so every job is
// issued up front and only execution is throttled.
type WorkerPool struct {
	sem  *semaphore.Weighted
	size int
	wg   sync.WaitGroup
}

// NewWorkerPool creates a pool running at most size jobs concurrently.
// A size of zero or less means unbounded.
func NewWorkerPool(size int) *WorkerPool {
	wp := &WorkerPool{size: size}
	if size > 0 {
		wp.sem = semaphore.NewWeighted(int64(size))
	}
	return wp
}

// Size returns the concurrency cap, zero when unbounded.
func (wp *WorkerPool) Size() int {
	if wp.size < 0 {
		return 0
	}
	return wp.size
}

// Do waits for a free slot and runs job in the calling goroutine. It returns
// ctx.Err() without running job if the context ends while waiting.
func (wp *WorkerPool) Do(ctx context.Context, job func(ctx context.Context)) error {
	if wp.sem != nil {
		if err := wp.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer wp.sem.Release(1)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	wp.wg.Add(1)
	defer wp.wg.Done()
	job(ctx)
	return nil
}

// Wait blocks until all running jobs have returned.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}
