package harness

import "sync"

// taskQueue is the microtask queue behind deferred input delivery.
//
// Delivery of a queued input is deliberately deferred to the next
// scheduling tick rather than performed synchronously, so a dispatch
// made while an effect is being classified is observed by the process
// only after the current micro-step finishes. The queue is drained by a
// single goroutine, which keeps delivery order deterministic without ad
// hoc timers.
//
// Thread-safety is provided for external scheduling while the run loop
// drains. The signal channel is buffered (size 1) to coalesce wakeups
// and closes when the queue closes, which wakes the drain loop for its
// final pass.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Schedule appends a task for the next drain tick.
// Returns false if the queue has been closed.
func (q *taskQueue) Schedule(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryNext pops the head task without blocking.
func (q *taskQueue) tryNext() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	fn := q.tasks[0]
	// Nil out the slot so the backing array does not retain the closure.
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return fn, true
}

func (q *taskQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.tasks) == 0
}

// run executes tasks one per tick until the queue is closed and empty.
// Must be called from exactly one goroutine.
func (q *taskQueue) run() {
	for {
		if fn, ok := q.tryNext(); ok {
			fn()
			continue
		}
		if q.drained() {
			return
		}
		// Wait for a wakeup. A closed signal channel fires immediately,
		// which routes back through the drain check above.
		<-q.signal
	}
}

// Close stops the queue. Pending tasks still run; new ones are refused.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
