package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/probelab/sagaprobe/internal/effect"
)

// Env is the yield surface handed to a task body. Helper methods build
// effect descriptors and yield them; every yield suspends the body until
// the engine has resolved the effect.
//
// Env is bound to one task and must only be used from that task's body.
type Env struct {
	eng  *Engine
	host Environment
	ctx  context.Context
	args []any
}

// Args returns the arguments the task was started or forked with.
func (v *Env) Args() []any { return v.args }

// Yield emits an arbitrary effect value and blocks until it resolves.
// The typed helpers below are thin wrappers over Yield; use Yield
// directly to emit raw awaitables or unclassified values.
func (v *Env) Yield(eff any) (any, error) {
	// Wait-for-input effects are armed before emission so an input
	// published synchronously by the monitor's bookkeeping cannot slip
	// past the subscription.
	if w, ok := waitInput(eff); ok {
		msg, _, err := v.take(v.ctx, w)
		if err != nil {
			return nil, err
		}
		return msg, nil
	}

	id := v.eng.ids.Generate()
	mon := v.host.Monitor()
	mon.EffectEmitted(id, eff)

	res, err := v.resolveWith(v.ctx, eff)
	if err != nil {
		mon.EffectFailed(id, err)
		return nil, err
	}
	mon.EffectResolved(id, res)
	return res, nil
}

// Take blocks until an input whose type matches pattern arrives.
func (v *Env) Take(pattern string) (effect.Message, error) {
	msg, _, err := v.take(v.ctx, effect.WaitInput{Pattern: pattern})
	return msg, err
}

// TakeMaybe is the optional wait: if the process is cancelled while
// waiting, it resolves with ok=false instead of an error.
func (v *Env) TakeMaybe(pattern string) (effect.Message, bool, error) {
	return v.take(v.ctx, effect.WaitInput{Pattern: pattern, Maybe: true})
}

// take arms the input subscription, then emits the effect, then waits.
// Arming first closes the window between the monitor observing the wait
// and the process actually listening. ctx is the resolving context: the
// task's for top-level waits, the race's for waits inside a race, so an
// abandoned race arm releases its subscription immediately.
func (v *Env) take(ctx context.Context, w effect.WaitInput) (effect.Message, bool, error) {
	ch := make(chan effect.Message, 1)
	var once sync.Once
	unsub := v.host.Subscribe(func(m effect.Message) {
		if !matchPattern(w.Pattern, m.Type) {
			return
		}
		once.Do(func() { ch <- m })
	})
	defer unsub()

	id := v.eng.ids.Generate()
	mon := v.host.Monitor()
	mon.EffectEmitted(id, w)

	select {
	case m := <-ch:
		mon.EffectResolved(id, m)
		return m, true, nil
	case <-ctx.Done():
		// An input published in the same instant the context was
		// cancelled must still be observed; delivery outranks
		// cancellation.
		select {
		case m := <-ch:
			mon.EffectResolved(id, m)
			return m, true, nil
		default:
		}
		if w.Maybe {
			mon.EffectResolved(id, nil)
			return effect.Message{}, false, nil
		}
		err := ctx.Err()
		mon.EffectFailed(id, err)
		return effect.Message{}, false, err
	}
}

// waitInput normalizes value and pointer wait descriptors.
func waitInput(eff any) (effect.WaitInput, bool) {
	switch w := eff.(type) {
	case effect.WaitInput:
		return w, true
	case *effect.WaitInput:
		return *w, true
	}
	return effect.WaitInput{}, false
}

// Put dispatches an output message.
func (v *Env) Put(msg effect.Message) error {
	_, err := v.Yield(effect.Dispatch{Message: msg})
	return err
}

// PutResolve dispatches a message using the resolved variant: the
// dispatch settles before the process resumes.
func (v *Env) PutResolve(msg effect.Message) error {
	_, err := v.Yield(effect.Dispatch{Message: msg, Resolve: true})
	return err
}

// PutMaybe dispatches a message using the optional variant: delivery is
// best effort and never fails the process.
func (v *Env) PutMaybe(msg effect.Message) error {
	_, err := v.Yield(effect.Dispatch{Message: msg, Maybe: true})
	return err
}

// Call invokes the named handler and awaits its return value.
func (v *Env) Call(fn string, args ...any) (any, error) {
	return v.Yield(effect.Invoke{Fn: fn, Args: args})
}

// CallCPS invokes the named callback-style handler and awaits the
// callback's result.
func (v *Env) CallCPS(fn string, args ...any) (any, error) {
	return v.Yield(effect.InvokeCallback{Fn: fn, Args: args})
}

// ForkTask spawns a registered task as a child and returns its handle
// without waiting for it.
func (v *Env) ForkTask(task string, args ...any) (*Task, error) {
	res, err := v.Yield(effect.Fork{Task: task, Args: args})
	if err != nil {
		return nil, err
	}
	t, ok := res.(*Task)
	if !ok {
		return nil, fmt.Errorf("fork %q: unexpected resolution %T", task, res)
	}
	return t, nil
}

// Select queries the environment's current state with a named selector.
func (v *Env) Select(selector string) (any, error) {
	return v.Yield(effect.Query{Selector: selector})
}

// GetChannel acquires an input channel scoped to pattern. The channel
// buffers matching inputs until the process reads them and closes with
// the process's context.
func (v *Env) GetChannel(pattern string) (<-chan effect.Message, error) {
	res, err := v.Yield(effect.Channel{Pattern: pattern})
	if err != nil {
		return nil, err
	}
	ch, ok := res.(<-chan effect.Message)
	if !ok {
		return nil, fmt.Errorf("channel %q: unexpected resolution %T", pattern, res)
	}
	return ch, nil
}

// RaceOps races the named sub-operations; the result maps the winning
// key to its value.
func (v *Env) RaceOps(ops map[string]any) (map[string]any, error) {
	res, err := v.Yield(effect.Race{Ops: ops})
	if err != nil {
		return nil, err
	}
	m, ok := res.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("race: unexpected resolution %T", res)
	}
	return m, nil
}

// Await yields a raw awaitable and blocks until it settles.
func (v *Env) Await(a effect.Awaitable) (any, error) {
	return v.Yield(a)
}

// resolveWith interprets a single effect. Race sub-operations re-enter
// here with the race's context; only input waits report to the monitor
// from inside a race, since queued-input delivery depends on it.
func (v *Env) resolveWith(ctx context.Context, eff any) (any, error) {
	switch e := eff.(type) {
	case effect.Dispatch:
		v.host.Publish(e.Message)
		return e.Message, nil

	case effect.Invoke:
		h, ok := v.eng.reg.handler(e.Fn)
		if !ok {
			v.eng.logger.Debug("invoke handler not registered", "fn", e.Fn)
			return nil, nil
		}
		return h(ctx, e.Args...)

	case effect.InvokeCallback:
		return v.resolveCallback(ctx, e)

	case effect.Fork:
		fn, err := v.eng.reg.task(e.Task)
		if err != nil {
			return nil, err
		}
		return v.eng.spawn(v.ctx, e.Task, fn, e.Args, v.host), nil

	case effect.Query:
		return selectState(v.host.CurrentState(), e.Selector), nil

	case effect.Channel:
		return v.resolveChannel(e), nil

	case effect.Race:
		return v.resolveRace(ctx, e)

	case effect.WaitInput:
		// Reached only from inside a race; top-level waits go through
		// the armed take path.
		msg, _, err := v.take(ctx, e)
		return msg, err

	case *effect.WaitInput:
		msg, _, err := v.take(ctx, *e)
		return msg, err

	case effect.Awaitable:
		return awaitValue(ctx, e)

	default:
		// Unclassified values resolve to themselves: the monitor has
		// recorded them for diagnostics, and there is nothing to run.
		return e, nil
	}
}

func (v *Env) resolveCallback(ctx context.Context, e effect.InvokeCallback) (any, error) {
	h, ok := v.eng.reg.callbackHandler(e.Fn)
	if !ok {
		v.eng.logger.Debug("callback handler not registered", "fn", e.Fn)
		return nil, nil
	}

	type outcome struct {
		val any
		err error
	}
	ch := make(chan outcome, 1)
	var once sync.Once
	h(ctx, e.Args, func(val any, err error) {
		once.Do(func() { ch <- outcome{val, err} })
	})

	select {
	case out := <-ch:
		return out.val, out.err
	case <-ctx.Done():
		select {
		case out := <-ch:
			return out.val, out.err
		default:
		}
		return nil, ctx.Err()
	}
}

func (v *Env) resolveChannel(e effect.Channel) <-chan effect.Message {
	ch := make(chan effect.Message, 16)
	unsub := v.host.Subscribe(func(m effect.Message) {
		if !matchPattern(e.Pattern, m.Type) {
			return
		}
		select {
		case ch <- m:
		default:
			// Buffer full: drop rather than block delivery to other
			// subscribers.
		}
	})
	go func() {
		<-v.ctx.Done()
		unsub()
	}()
	return ch
}

func (v *Env) resolveRace(ctx context.Context, e effect.Race) (any, error) {
	if len(e.Ops) == 0 {
		return map[string]any{}, nil
	}

	type entry struct {
		key string
		val any
		err error
	}
	rctx, rcancel := context.WithCancel(ctx)
	defer rcancel()

	ch := make(chan entry, len(e.Ops))
	for key, op := range e.Ops {
		go func(key string, op any) {
			val, err := v.resolveWith(rctx, op)
			ch <- entry{key, val, err}
		}(key, op)
	}

	// First settlement wins; the rest are abandoned via rctx.
	first := <-ch
	if first.err != nil {
		return nil, fmt.Errorf("race op %q: %w", first.key, first.err)
	}
	return map[string]any{first.key: first.val}, nil
}

// awaitValue waits for a raw awaitable. If the awaitable also carries a
// value (engine.Future does), the value is the resolution. An awaitable
// that settled in the same instant the context was cancelled still
// resolves.
func awaitValue(ctx context.Context, a effect.Awaitable) (any, error) {
	select {
	case <-a.Done():
		return settledValue(a)
	case <-ctx.Done():
		select {
		case <-a.Done():
			return settledValue(a)
		default:
		}
		return nil, ctx.Err()
	}
}

func settledValue(a effect.Awaitable) (any, error) {
	if err := a.Err(); err != nil {
		return nil, err
	}
	if fv, ok := a.(interface{ Value() any }); ok {
		return fv.Value(), nil
	}
	return nil, nil
}

// matchPattern matches an input's type against a wait pattern.
// Empty pattern and "*" match everything.
func matchPattern(pattern, typ string) bool {
	return pattern == "" || pattern == "*" || pattern == typ
}

// selectState applies a named selector to the environment's state.
// Empty selector returns the whole state; a map state is indexed by the
// selector name; anything else resolves to nil.
func selectState(state any, selector string) any {
	if selector == "" {
		return state
	}
	if m, ok := state.(map[string]any); ok {
		return m[selector]
	}
	return nil
}
