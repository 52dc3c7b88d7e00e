// Package worker runs blocking inference calls off the coordinating
// goroutines on a bounded set of workers.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when work is submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// job is a unit of work for a worker goroutine.
type job struct {
	ctx context.Context
	run func(context.Context)
}

// Pool manages a fixed number of workers fed from a bounded job queue.
type Pool struct {
	jobs    chan job
	workers int

	// mu guards closed and sends on jobs against Close
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	active    atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	abandoned atomic.Int64
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers   int
	Active    int64
	Submitted int64
	Completed int64
	Abandoned int64
}

// New creates a pool with the given number of workers and queue capacity and
// starts the workers.
func New(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		jobs:    make(chan job, queueSize),
		workers: workers,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// worker processes jobs until the queue is closed.
func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.active.Add(1)
		j.run(j.ctx)
		p.active.Add(-1)
		p.completed.Add(1)
	}
}

// submit enqueues a job, blocking while the queue is full.
func (p *Pool) submit(ctx context.Context, run func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job{ctx: ctx, run: run}:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the pool and waits for its result. If ctx is cancelled first,
// Do returns ctx.Err() and the call is abandoned: fn keeps running on its
// worker and its result is discarded.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	var zero T
	done := make(chan result, 1)

	err := p.submit(ctx, func(jctx context.Context) {
		v, err := fn(jctx)
		done <- result{val: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		p.abandoned.Add(1)
		return zero, ctx.Err()
	}
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Active:    p.active.Load(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Abandoned: p.abandoned.Load(),
	}
}

// Close stops accepting work and waits for queued and running jobs to finish.
// It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
