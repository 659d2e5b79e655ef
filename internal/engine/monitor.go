package engine

import "github.com/probelab/sagaprobe/internal/effect"

// Monitor is the sink that observes the lifecycle of every effect a
// process yields. The harness implements it to classify and record
// effects; a monitor must tolerate calls for effects it has no interest
// in (uninterested notifications fall through as no-ops).
type Monitor interface {
	// EffectEmitted fires when the process yields eff, before the engine
	// begins resolving it. id correlates the later resolution.
	EffectEmitted(id string, eff any)

	// EffectResolved fires when the effect identified by id resolved
	// with value.
	EffectResolved(id string, value any)

	// EffectFailed fires when resolution of the effect failed.
	EffectFailed(id string, err error)
}

// NopMonitor ignores every notification.
type NopMonitor struct{}

func (NopMonitor) EffectEmitted(string, any)  {}
func (NopMonitor) EffectResolved(string, any) {}
func (NopMonitor) EffectFailed(string, error) {}

// Environment is the simulated host a process runs against. The harness
// supplies the implementation; the engine only consumes this interface.
type Environment interface {
	// Subscribe registers a listener for inputs delivered to the
	// process. The returned unsubscribe is safe to call more than once.
	Subscribe(fn func(effect.Message)) (unsubscribe func())

	// Publish delivers an input value toward the process, subject to the
	// environment's blocked-versus-queued delivery rule.
	Publish(msg effect.Message)

	// CurrentState returns the state visible to Query effects.
	CurrentState() any

	// Monitor returns the effect lifecycle sink.
	Monitor() Monitor
}
