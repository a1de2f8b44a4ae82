// Package worker provides a single-shot background job with a
// non-blocking poll, the only concurrency primitive the tile engine
// uses. Jobs are scheduled on a shared bounded pool and run to
// completion; there is no cancellation.
package worker

import (
	"runtime"
	"sync/atomic"
)

// Pool is a fixed-size executor for fire-and-forget jobs.
type Pool struct {
	jobs chan func()
}

// NewPool starts n executor goroutines. n <= 0 picks a default based on
// the number of CPUs.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = max(2, runtime.NumCPU()-1)
	}
	p := &Pool{jobs: make(chan func(), 64)}
	for range n {
		go func() {
			for fn := range p.jobs {
				fn()
			}
		}()
	}
	return p
}

// Worker wraps one background job. The zero value is idle; Start may be
// called once, Poll any number of times from the owner goroutine.
type Worker struct {
	started bool
	done    atomic.Bool
}

// Start schedules fn on the pool. Non-blocking: if the pool queue is
// full the job is handed to a fresh goroutine instead.
func (w *Worker) Start(p *Pool, fn func()) {
	if w.started {
		return
	}
	w.started = true
	job := func() {
		fn()
		w.done.Store(true)
	}
	select {
	case p.jobs <- job:
	default:
		go job()
	}
}

// Running reports whether a job has been started and not yet finished.
func (w *Worker) Running() bool {
	return w.started && !w.done.Load()
}

// Poll returns true once the job has completed. It is idempotent and
// never blocks; a Worker that was never started polls as done.
func (w *Worker) Poll() bool {
	return !w.started || w.done.Load()
}
