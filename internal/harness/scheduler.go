package harness

import (
	"sync"
	"time"

	"github.com/probelab/sagaprobe/internal/effect"
)

// scheduler drives run completion: it waits for every tracked child and
// raw awaitable to finish, re-snapshotting whenever new work appears
// mid-drain, and optionally races the whole drain against a timeout.
// The root process is not part of the drain set; the harness cancels it
// once the drain returns and awaits its completion separately. The
// timeout is advisory; an expired drain logs a warning and hands
// control back so the harness can cancel the tree.
type scheduler struct {
	h *Harness

	mu    sync.Mutex
	dirty bool
}

func newScheduler(h *Harness) *scheduler {
	return &scheduler{h: h}
}

// markDirty flags that new asynchronous work was discovered. Safe from
// any goroutine; the drain loop re-snapshots on the next pass.
func (s *scheduler) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

func (s *scheduler) consumeDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.dirty
	s.dirty = false
	return was
}

// drain blocks until all tracked work has settled, or until timeout
// expires. A non-positive timeout disables the timer and waits
// unconditionally. Work spawned during a drain pass forces another
// pass, so a fork-of-fork chain settles fully before the ledger is
// checked. A process whose only remaining act is to wait for input
// contributes no work and drains immediately.
func (s *scheduler) drain(timeout time.Duration) {
	h := s.h

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for pass := 1; ; pass++ {
		s.consumeDirty()

		work := h.tracker.PendingWork()
		h.logger.Debug("drain pass", "pass", pass, "pending", len(work))

		done := make(chan struct{})
		quit := make(chan struct{})
		go waitAll(work, done, quit)

		select {
		case <-done:
			if s.consumeDirty() {
				continue
			}
			return
		case <-expired:
			close(quit)
			h.logger.Warn("drain timed out with work still pending",
				"timeout", timeout, "pass", pass, "pending", len(work))
			return
		}
	}
}

// waitAll waits for every completion signal in work, abandoning the
// walk when quit closes so a timed-out drain leaks no goroutine.
func waitAll(work []effect.Awaitable, done chan<- struct{}, quit <-chan struct{}) {
	for _, w := range work {
		select {
		case <-w.Done():
		case <-quit:
			return
		}
	}
	close(done)
}
