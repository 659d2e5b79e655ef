// Package bus implements the listener side of the simulated environment:
// a set of input subscribers plus a FIFO queue of inputs that arrived
// while the process was not ready for them.
package bus

import (
	"sync"

	"github.com/probelab/sagaprobe/internal/effect"
)

// subscriber is one registered callback. Entries are tombstoned rather
// than spliced so that removal during iteration cannot disturb delivery
// order for the remaining subscribers.
type subscriber struct {
	fn      func(effect.Message)
	removed bool
}

// Bus fans injected inputs out to subscribers, or queues them when the
// process is not blocked waiting for input.
//
// Delivery rule: Inject publishes immediately (synchronously, in
// subscription order) while the blocked flag is set; otherwise the value
// joins the FIFO queue and is delivered one per drain tick once the
// process blocks on input again.
type Bus struct {
	mu      sync.Mutex
	subs    []*subscriber
	pending []effect.Message
	blocked bool
}

// New creates an empty bus. One bus belongs to one harness instance.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a callback and returns its unsubscribe function.
// Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(fn func(effect.Message)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscriber{fn: fn}
	b.subs = append(b.subs, s)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			s.removed = true
			b.compact()
		})
	}
}

// compact drops tombstoned entries. Called with the lock held; safe
// because Publish iterates over its own snapshot.
func (b *Bus) compact() {
	live := b.subs[:0]
	for _, s := range b.subs {
		if !s.removed {
			live = append(live, s)
		}
	}
	for i := len(live); i < len(b.subs); i++ {
		b.subs[i] = nil
	}
	b.subs = live
}

// Publish delivers msg to every current subscriber, synchronously, in
// subscription order. Subscribers unsubscribed after the snapshot was
// taken are skipped.
func (b *Bus) Publish(msg effect.Message) {
	b.mu.Lock()
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	b.deliver(snapshot, msg)
}

// snapshotLocked copies the current subscriber list. Caller holds the
// lock.
func (b *Bus) snapshotLocked() []*subscriber {
	snapshot := make([]*subscriber, len(b.subs))
	copy(snapshot, b.subs)
	return snapshot
}

func (b *Bus) deliver(snapshot []*subscriber, msg effect.Message) {
	for _, s := range snapshot {
		b.mu.Lock()
		dead := s.removed
		b.mu.Unlock()
		if dead {
			continue
		}
		s.fn(msg)
	}
}

// Enqueue appends msg to the pending-input queue.
func (b *Bus) Enqueue(msg effect.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, msg)
}

// DrainOne removes and publishes the head of the pending queue.
// Reports whether a message was delivered. If there are no subscribers
// yet, the head stays queued for a later drain tick. A delivery consumes
// the block window, so inputs injected before the process blocks again
// are queued rather than published at a wait that is already satisfied.
func (b *Bus) DrainOne() bool {
	b.mu.Lock()
	if len(b.pending) == 0 || len(b.subs) == 0 {
		b.mu.Unlock()
		return false
	}
	head := b.pending[0]
	b.pending[0] = effect.Message{}
	b.pending = b.pending[1:]
	b.blocked = false
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	b.deliver(snapshot, head)
	return true
}

// SetBlocked records whether the process is currently blocked waiting
// for input; Inject consults it.
func (b *Bus) SetBlocked(blocked bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked = blocked
}

// Blocked reports the current blocked flag.
func (b *Bus) Blocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked
}

// Inject applies the delivery rule to an externally supplied input:
// publish immediately if the process is blocked on input, else queue.
// Reports whether the value was published (true) or queued (false).
//
// An immediate publish consumes the block window atomically: one wait
// admits one publish. The blocked flag is cleared here rather than on
// the process's resolution callback, so a second inject racing the
// process's resume queues instead of reaching a subscriber whose wait
// has already been satisfied, where it would be observed by no one.
func (b *Bus) Inject(msg effect.Message) bool {
	b.mu.Lock()
	if !b.blocked || len(b.subs) == 0 {
		b.pending = append(b.pending, msg)
		b.mu.Unlock()
		return false
	}
	b.blocked = false
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	b.deliver(snapshot, msg)
	return true
}

// PendingLen returns the number of queued, undelivered inputs.
func (b *Bus) PendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
