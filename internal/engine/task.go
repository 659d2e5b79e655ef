package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Task is the handle of a running process or forked child. It carries a
// completion signal (effect.Awaitable) and supports cancellation.
//
// A Task settles exactly once. Cancellation of an already-settled task is
// a no-op, and a task that ends because it was cancelled settles cleanly
// (cancellation is not a failure).
type Task struct {
	id   string
	name string

	cancelFn  context.CancelFunc
	cancelled atomic.Bool

	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	err error
}

func newTask(id, name string, cancel context.CancelFunc) *Task {
	return &Task{
		id:       id,
		name:     name,
		cancelFn: cancel,
		done:     make(chan struct{}),
	}
}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// Name returns the registered task name this handle runs.
func (t *Task) Name() string { return t.name }

// Done is closed once the task has settled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err reports how the task settled. Valid only after Done is closed;
// nil means success or clean cancellation.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Cancel requests cancellation. Idempotent, and a no-op on a task that
// has already settled.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
	t.cancelFn()
}

// finish settles the task. Context cancellation after an explicit
// Cancel() is a clean stop, not a failure.
func (t *Task) finish(err error) {
	t.once.Do(func() {
		if err != nil && t.cancelled.Load() && errors.Is(err, context.Canceled) {
			err = nil
		}
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

// Future is a settable asynchronous result. Processes yield futures as
// raw awaitables; the completion scheduler drains them like any other
// pending work.
type Future struct {
	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	val any
	err error
}

// NewFuture creates an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve settles the future with a value. Later calls are no-ops.
func (f *Future) Resolve(v any) {
	f.once.Do(func() {
		f.mu.Lock()
		f.val = v
		f.mu.Unlock()
		close(f.done)
	})
}

// Reject settles the future with an error. Later calls are no-ops.
func (f *Future) Reject(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err reports the settlement error. Valid only after Done is closed.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Value returns the resolved value. Valid only after Done is closed.
func (f *Future) Value() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val
}
