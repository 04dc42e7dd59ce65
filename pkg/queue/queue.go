// Package queue schedules expensive tasks with bounded concurrency,
// FIFO admission, and independent settlement per caller.
package queue

import (
	"context"
	"sync"
)

// Status is a point-in-time view of queue occupancy.
type Status struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
}

// Queue runs submitted tasks with at most maxConcurrent in flight.
// Tasks begin in submission order but may complete in any order; one
// task's failure never affects its siblings.
type Queue[T any] struct {
	mu            sync.Mutex
	maxConcurrent int
	running       int
	pending       []*task[T]
}

type task[T any] struct {
	fn   func() (T, error)
	done chan result[T]
}

type result[T any] struct {
	value T
	err   error
}

// New returns a Queue that executes at most maxConcurrent tasks at once.
func New[T any](maxConcurrent int) *Queue[T] {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue[T]{maxConcurrent: maxConcurrent}
}

// Add submits fn and blocks until it settles or ctx is done. A task that
// has started keeps running even if the caller stops waiting; there is no
// cancellation once admitted.
func (q *Queue[T]) Add(ctx context.Context, fn func() (T, error)) (T, error) {
	t := &task[T]{fn: fn, done: make(chan result[T], 1)}

	q.mu.Lock()
	q.pending = append(q.pending, t)
	q.advanceLocked()
	q.mu.Unlock()

	select {
	case res := <-t.done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// advanceLocked starts pending tasks while slots are free. Callers must
// hold q.mu.
func (q *Queue[T]) advanceLocked() {
	for q.running < q.maxConcurrent && len(q.pending) > 0 {
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.running++
		go q.run(t)
	}
}

func (q *Queue[T]) run(t *task[T]) {
	value, err := t.fn()

	q.mu.Lock()
	q.running--
	q.advanceLocked()
	q.mu.Unlock()

	t.done <- result[T]{value: value, err: err}
}

// Status reports the current running and queued counts.
func (q *Queue[T]) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{Running: q.running, Queued: len(q.pending)}
}
