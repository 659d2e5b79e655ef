package harness

import (
	"github.com/probelab/sagaprobe/internal/effect"
	"github.com/probelab/sagaprobe/internal/engine"
)

// hostEnv adapts the harness to the engine's Environment contract. The
// process sees the harness as its host: inputs arrive over the bus,
// dispatched messages loop back through injection, queries read the
// provided state, and every yield lands in the monitor.
type hostEnv struct {
	h *Harness
}

func (e hostEnv) Subscribe(fn func(effect.Message)) func() {
	return e.h.bus.Subscribe(fn)
}

// Publish is how Dispatch effects surface. Dispatched messages feed
// back into the input path so a process can observe its own output,
// mirroring a store round-trip.
func (e hostEnv) Publish(msg effect.Message) {
	e.h.bus.Inject(msg)
}

func (e hostEnv) CurrentState() any {
	e.h.mu.Lock()
	defer e.h.mu.Unlock()
	return e.h.state
}

func (e hostEnv) Monitor() engine.Monitor {
	return monitor{e.h}
}

// monitor observes every effect yielded anywhere in the process tree
// and drives classification, recording, fork correlation, and the
// blocked-input state machine.
type monitor struct {
	h *Harness
}

func (m monitor) EffectEmitted(id string, eff any) {
	h := m.h
	cat := effect.Classify(eff)

	h.mu.Lock()
	h.ms.Record(cat, eff)
	h.seq++
	seq := h.seq

	switch cat {
	case effect.CategoryFork:
		if f, ok := forkDescriptor(eff); ok {
			h.tracker.OnForkRequested(id, f)
		}
	case effect.CategoryAsyncResult:
		if a, ok := eff.(effect.Awaitable); ok {
			h.tracker.TrackAwaitable(a)
		}
	case effect.CategoryWaitInput:
		// The process is (about to be) parked on this effect. Mark the
		// bus blocked and hand one queued input to the microtask queue;
		// delivery stays asynchronous so the subscription arming in the
		// engine always wins the race.
		h.blockedEffect = id
		h.bus.SetBlocked(true)
		h.tasks.Schedule(func() { h.bus.DrainOne() })
	}
	h.mu.Unlock()

	h.logger.Debug("effect emitted", "id", id, "category", cat.String())
	h.recordEffect(seq, id, cat, eff)
}

func (m monitor) EffectResolved(id string, value any) {
	h := m.h
	h.mu.Lock()
	h.tracker.OnForkResolved(id, value)
	if h.blockedEffect == id {
		h.blockedEffect = ""
		h.bus.SetBlocked(false)
	}
	h.mu.Unlock()

	h.logger.Debug("effect resolved", "id", id)
	h.recordOutcome(id, "resolved")
}

func (m monitor) EffectFailed(id string, err error) {
	h := m.h
	h.mu.Lock()
	h.tracker.OnForkResolved(id, nil)
	if h.blockedEffect == id {
		h.blockedEffect = ""
		h.bus.SetBlocked(false)
	}
	h.mu.Unlock()

	h.logger.Debug("effect failed", "id", id, "error", err)
	h.recordOutcome(id, "failed")
}

// forkDescriptor normalizes value and pointer fork descriptors.
func forkDescriptor(eff any) (effect.Fork, bool) {
	switch f := eff.(type) {
	case effect.Fork:
		return f, true
	case *effect.Fork:
		return *f, true
	}
	return effect.Fork{}, false
}

func (h *Harness) recordEffect(seq int64, id string, cat effect.Category, eff any) {
	if h.rec == nil {
		return
	}
	payload, err := effect.MarshalCanonical(eff)
	if err != nil {
		payload = []byte("null")
	}
	if err := h.rec.RecordEffect(h.runID, seq, id, cat.String(), payload); err != nil {
		h.logger.Warn("trace write failed", "id", id, "error", err)
	}
}

func (h *Harness) recordOutcome(id, outcome string) {
	if h.rec == nil {
		return
	}
	if err := h.rec.RecordOutcome(h.runID, id, outcome); err != nil {
		h.logger.Warn("trace outcome write failed", "id", id, "error", err)
	}
}
