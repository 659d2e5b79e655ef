// Package track correlates in-flight fork requests with the child tasks
// they resolve to, and collects every completion the scheduler must
// drain before a run can settle.
package track

import (
	"sync"

	"github.com/probelab/sagaprobe/internal/effect"
)

// Tracker is the bookkeeping for asynchronous work discovered during a
// run: pending fork correlations, spawned children, and raw awaitables
// the process yielded.
//
// The environment reports every effect's resolution uniformly; the
// tracker is the one interested party for fork ids and ignores all other
// resolutions.
type Tracker struct {
	mu           sync.Mutex
	pendingForks map[string]any
	children     []effect.Awaitable
	asyncs       []effect.Awaitable
	onSpawn      func()
}

// New creates an empty tracker bound to one harness instance.
func New() *Tracker {
	return &Tracker{pendingForks: make(map[string]any)}
}

// SetSpawnHook installs the callback fired whenever a new child task is
// registered. The completion scheduler uses it as its dirty signal.
func (t *Tracker) SetSpawnHook(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSpawn = fn
}

// OnForkRequested registers a pending correlation from a fork effect's
// id to its descriptor.
func (t *Tracker) OnForkRequested(id string, descriptor any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingForks[id] = descriptor
}

// OnForkResolved consumes a pending fork correlation: if id was
// registered and the result carries a completion signal, the child joins
// the tracked set and the spawn hook fires. Resolutions of non-fork
// effects are no-ops here.
func (t *Tracker) OnForkResolved(id string, result any) {
	t.mu.Lock()
	if _, ok := t.pendingForks[id]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.pendingForks, id)

	child, ok := result.(effect.Awaitable)
	if !ok {
		t.mu.Unlock()
		return
	}
	t.children = append(t.children, child)
	hook := t.onSpawn
	t.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// TrackAwaitable adds a raw asynchronous result to the pending set.
func (t *Tracker) TrackAwaitable(a effect.Awaitable) {
	t.mu.Lock()
	t.asyncs = append(t.asyncs, a)
	hook := t.onSpawn
	t.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// PendingWork returns every completion signal the scheduler must drain:
// all tracked children plus all tracked raw awaitables.
func (t *Tracker) PendingWork() []effect.Awaitable {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]effect.Awaitable, 0, len(t.children)+len(t.asyncs))
	out = append(out, t.children...)
	out = append(out, t.asyncs...)
	return out
}

// ChildCount reports how many child tasks have been tracked.
func (t *Tracker) ChildCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children)
}

// PendingForkCount reports fork requests still awaiting resolution.
func (t *Tracker) PendingForkCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pendingForks)
}
