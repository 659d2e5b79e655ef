package harness

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/sagaprobe/internal/effect"
	"github.com/probelab/sagaprobe/internal/engine"
)

func TestHarnessDispatchExpectationMet(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("emitter", func(ctx context.Context, env *engine.Env) error {
		return env.Put(effect.Message{Type: "greeting", Payload: "hello"})
	})

	h := New(reg, "emitter", nil).
		ExpectDispatch(effect.Message{Type: "greeting", Payload: "hello"})

	require.NoError(t, h.Run(DefaultStopTimeout))
}

func TestHarnessUnmetExpectation(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("quiet", func(ctx context.Context, env *engine.Env) error {
		return nil
	})

	h := New(reg, "quiet", nil).
		ExpectDispatch(effect.Message{Type: "never.sent"})

	err := h.Run(DefaultStopTimeout)
	require.Error(t, err)
	assert.True(t, IsUnmetExpectation(err))

	var ue *UnmetExpectationError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, effect.CategoryDispatch, ue.Category)
	assert.Contains(t, ue.Error(), "(none recorded)")
}

func TestHarnessQueuedInputsDeliveredInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})

	reg := engine.NewRegistry()
	reg.RegisterTask("listener", func(ctx context.Context, env *engine.Env) error {
		defer close(done)
		for range 2 {
			msg, err := env.Take("*")
			if err != nil {
				return err
			}
			mu.Lock()
			seen = append(seen, msg.Type)
			mu.Unlock()
		}
		return nil
	})

	h := New(reg, "listener", nil).
		ExpectWait("*").
		ExpectWait("*").
		InjectInput(effect.Message{Type: "first"}).
		InjectInput(effect.Message{Type: "second"})

	require.NoError(t, h.Start())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued inputs were not delivered")
	}
	require.NoError(t, h.Stop(DefaultStopTimeout))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestHarnessBlockedInputsObservedInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})

	reg := engine.NewRegistry()
	reg.RegisterTask("listener", func(ctx context.Context, env *engine.Env) error {
		defer close(done)
		for range 2 {
			msg, err := env.Take("*")
			if err != nil {
				return err
			}
			mu.Lock()
			seen = append(seen, msg.Type)
			mu.Unlock()
		}
		return nil
	})

	h := New(reg, "listener", nil).
		ExpectWait("*").
		ExpectWait("*")

	require.NoError(t, h.Start())
	require.Eventually(t, h.bus.Blocked, time.Second, time.Millisecond)

	// Both land while the process is parked on its first wait. The first
	// publish satisfies that wait; the second must queue for the next
	// wait and still be observed, in order.
	h.InjectInput(effect.Message{Type: "first"})
	h.InjectInput(effect.Message{Type: "second"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second input was never observed")
	}
	require.NoError(t, h.Stop(DefaultStopTimeout))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestHarnessInjectAfterStart(t *testing.T) {
	done := make(chan struct{})
	reg := engine.NewRegistry()
	reg.RegisterTask("echo", func(ctx context.Context, env *engine.Env) error {
		defer close(done)
		msg, err := env.Take("ping")
		if err != nil {
			return err
		}
		return env.Put(effect.Message{Type: "pong", Payload: msg.Payload})
	})

	h := New(reg, "echo", nil).
		ExpectWait("ping").
		ExpectDispatch(effect.Message{Type: "pong", Payload: "x"})

	require.NoError(t, h.Start())
	h.InjectInput(effect.Message{Type: "ping", Payload: "x"})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("input was not delivered")
	}
	require.NoError(t, h.Stop(time.Second))
}

func TestHarnessInvokeHandler(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("caller", func(ctx context.Context, env *engine.Env) error {
		v, err := env.Call("fetch", "user:1")
		if err != nil {
			return err
		}
		return env.Put(effect.Message{Type: "fetched", Payload: v})
	})

	h := New(reg, "caller", nil).
		HandleInvoke("fetch", func(ctx context.Context, args ...any) (any, error) {
			require.Equal(t, []any{"user:1"}, args)
			return "ada", nil
		}).
		ExpectInvoke("fetch", "user:1").
		ExpectDispatch(effect.Message{Type: "fetched", Payload: "ada"})

	require.NoError(t, h.Run(DefaultStopTimeout))
}

func TestHarnessCallbackHandler(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("caller", func(ctx context.Context, env *engine.Env) error {
		v, err := env.CallCPS("lookup", 7)
		if err != nil {
			return err
		}
		return env.Put(effect.Message{Type: "looked_up", Payload: v})
	})

	h := New(reg, "caller", nil).
		HandleInvokeCallback("lookup", func(ctx context.Context, args []any, done func(any, error)) {
			done("found", nil)
		}).
		ExpectInvokeCallback("lookup", 7).
		ExpectDispatch(effect.Message{Type: "looked_up", Payload: "found"})

	require.NoError(t, h.Run(DefaultStopTimeout))
}

func TestHarnessQueryReadsProvidedState(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("reader", func(ctx context.Context, env *engine.Env) error {
		v, err := env.Select("user")
		if err != nil {
			return err
		}
		return env.Put(effect.Message{Type: "read", Payload: v})
	})

	h := New(reg, "reader", nil).
		ProvideState(map[string]any{"user": "ada"}).
		ExpectQuery("user").
		ExpectDispatch(effect.Message{Type: "read", Payload: "ada"})

	require.NoError(t, h.Run(DefaultStopTimeout))
}

func TestHarnessForkRunsChildToCompletion(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("child", func(ctx context.Context, env *engine.Env) error {
		time.Sleep(20 * time.Millisecond)
		return env.Put(effect.Message{Type: "child.done"})
	})
	forked := make(chan struct{})
	reg.RegisterTask("parent", func(ctx context.Context, env *engine.Env) error {
		_, err := env.ForkTask("child")
		close(forked)
		return err
	})

	h := New(reg, "parent", nil).
		ExpectFork("child").
		ExpectDispatch(effect.Message{Type: "child.done"})

	require.NoError(t, h.Start())
	select {
	case <-forked:
	case <-time.After(time.Second):
		t.Fatal("fork never happened")
	}
	require.NoError(t, h.Stop(time.Second))
}

func TestHarnessForkOfForkDrainsFully(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("grandchild", func(ctx context.Context, env *engine.Env) error {
		time.Sleep(20 * time.Millisecond)
		return env.Put(effect.Message{Type: "deep.done"})
	})
	reg.RegisterTask("middle", func(ctx context.Context, env *engine.Env) error {
		time.Sleep(10 * time.Millisecond)
		_, err := env.ForkTask("grandchild")
		return err
	})
	forked := make(chan struct{})
	reg.RegisterTask("top", func(ctx context.Context, env *engine.Env) error {
		_, err := env.ForkTask("middle")
		close(forked)
		return err
	})

	h := New(reg, "top", nil).
		ExpectFork("middle").
		ExpectFork("grandchild").
		ExpectDispatch(effect.Message{Type: "deep.done"})

	require.NoError(t, h.Start())
	select {
	case <-forked:
	case <-time.After(time.Second):
		t.Fatal("fork never happened")
	}
	require.NoError(t, h.Stop(time.Second))
}

func TestHarnessRaceFirstSettlementWins(t *testing.T) {
	fut := engine.NewFuture()
	fut.Resolve("fast-value")

	ops := map[string]any{
		"fast": fut,
		"slow": effect.WaitInput{Pattern: "never.arrives"},
	}

	done := make(chan struct{})
	reg := engine.NewRegistry()
	reg.RegisterTask("racer", func(ctx context.Context, env *engine.Env) error {
		defer close(done)
		res, err := env.RaceOps(ops)
		if err != nil {
			return err
		}
		return env.Put(effect.Message{Type: "won", Payload: res["fast"]})
	})

	h := New(reg, "racer", nil).
		ExpectRace(ops).
		ExpectDispatch(effect.Message{Type: "won", Payload: "fast-value"})

	require.NoError(t, h.Start())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("race never settled")
	}
	require.NoError(t, h.Stop(DefaultStopTimeout))
}

// syncWriter guards a buffer shared with the harness logger.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestHarnessDrainTimeoutIsAdvisory(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("stuck", func(ctx context.Context, env *engine.Env) error {
		// Never resolved; only cancellation unblocks the await.
		_, err := env.Await(engine.NewFuture())
		return err
	})

	var out syncWriter
	logger := slog.New(slog.NewTextHandler(&out, nil))

	h := New(reg, "stuck", nil, WithLogger(logger))

	require.NoError(t, h.Start())
	require.Eventually(t, func() bool {
		return len(h.tracker.PendingWork()) == 1
	}, time.Second, time.Millisecond)

	// The timeout fires, the warning lands, the process tree is
	// cancelled, and the run still settles cleanly: cancellation of a
	// stuck process is not a failure.
	require.NoError(t, h.Stop(30*time.Millisecond))
	assert.Contains(t, out.String(), "drain timed out")
}

func TestHarnessZeroTimeoutNeverWarns(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("slowish", func(ctx context.Context, env *engine.Env) error {
		time.Sleep(50 * time.Millisecond)
		return env.Put(effect.Message{Type: "late"})
	})

	var out syncWriter
	logger := slog.New(slog.NewTextHandler(&out, nil))

	h := New(reg, "slowish", nil, WithLogger(logger)).
		ExpectDispatch(effect.Message{Type: "late"})

	require.NoError(t, h.Run(0))
	assert.NotContains(t, out.String(), "drain timed out")
}

func TestHarnessZeroTimeoutWaitsForSlowAsyncWork(t *testing.T) {
	fut := engine.NewFuture()

	reg := engine.NewRegistry()
	reg.RegisterTask("awaiter", func(ctx context.Context, env *engine.Env) error {
		v, err := env.Await(fut)
		if err != nil {
			return err
		}
		return env.Put(effect.Message{Type: "late", Payload: v})
	})

	var out syncWriter
	logger := slog.New(slog.NewTextHandler(&out, nil))

	h := New(reg, "awaiter", nil, WithLogger(logger)).
		ExpectDispatch(effect.Message{Type: "late", Payload: "v"})

	require.NoError(t, h.Start())
	require.Eventually(t, func() bool {
		return len(h.tracker.PendingWork()) == 1
	}, time.Second, time.Millisecond)

	time.AfterFunc(50*time.Millisecond, func() { fut.Resolve("v") })

	require.NoError(t, h.Stop(0))
	assert.NotContains(t, out.String(), "drain timed out")
}

func TestHarnessStopZeroSettlesWhenBlockedOnInput(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("waiter", func(ctx context.Context, env *engine.Env) error {
		_, err := env.Take("never.arrives")
		return err
	})

	h := New(reg, "waiter", nil).ExpectWait("never.arrives")

	require.NoError(t, h.Start())
	require.Eventually(t, h.bus.Blocked, time.Second, time.Millisecond)

	// A process parked on input contributes no pending work: the
	// unconditional wait settles immediately instead of hanging on the
	// root, which only finishes through the cancellation that follows
	// the drain.
	require.NoError(t, h.Stop(0))
}

func TestHarnessStopBlockedOnInputDoesNotWarn(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("waiter", func(ctx context.Context, env *engine.Env) error {
		_, err := env.Take("never.arrives")
		return err
	})

	var out syncWriter
	logger := slog.New(slog.NewTextHandler(&out, nil))

	h := New(reg, "waiter", nil, WithLogger(logger)).
		ExpectWait("never.arrives")

	require.NoError(t, h.Start())
	require.Eventually(t, h.bus.Blocked, time.Second, time.Millisecond)

	start := time.Now()
	require.NoError(t, h.Stop(DefaultStopTimeout))
	assert.Less(t, time.Since(start), DefaultStopTimeout)
	assert.NotContains(t, out.String(), "drain timed out")
}

func TestHarnessProcessFailureTakesPrecedence(t *testing.T) {
	boom := errors.New("exploded")

	reg := engine.NewRegistry()
	reg.RegisterTask("failing", func(ctx context.Context, env *engine.Env) error {
		return boom
	})

	h := New(reg, "failing", nil).
		ExpectDispatch(effect.Message{Type: "never.sent"})

	err := h.Run(DefaultStopTimeout)
	require.Error(t, err)
	assert.True(t, IsProcessFailure(err))
	assert.False(t, IsUnmetExpectation(err))
	assert.ErrorIs(t, err, boom)
}

func TestHarnessStopIsIdempotent(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("quiet", func(ctx context.Context, env *engine.Env) error {
		return nil
	})

	h := New(reg, "quiet", nil).
		ExpectDispatch(effect.Message{Type: "missing"})

	first := h.Run(DefaultStopTimeout)
	require.Error(t, first)

	second := h.Stop(DefaultStopTimeout)
	assert.Same(t, first.(*UnmetExpectationError), second.(*UnmetExpectationError))
}

func TestHarnessConcurrentStopsShareSettlement(t *testing.T) {
	fut := engine.NewFuture()

	reg := engine.NewRegistry()
	reg.RegisterTask("awaiter", func(ctx context.Context, env *engine.Env) error {
		_, err := env.Await(fut)
		return err
	})

	h := New(reg, "awaiter", nil).
		ExpectDispatch(effect.Message{Type: "missing"})

	require.NoError(t, h.Start())
	require.Eventually(t, func() bool {
		return len(h.tracker.PendingWork()) == 1
	}, time.Second, time.Millisecond)

	// The losing Stop must wait out the in-flight drain and return the
	// same settlement, not a premature nil.
	time.AfterFunc(20*time.Millisecond, func() { fut.Resolve(nil) })

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.Stop(time.Second)
		}()
	}
	wg.Wait()

	require.Error(t, errs[0])
	require.Error(t, errs[1])
	assert.Same(t, errs[0].(*UnmetExpectationError), errs[1].(*UnmetExpectationError))
}

func TestHarnessExpectationAfterStartIgnored(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("quiet", func(ctx context.Context, env *engine.Env) error {
		return nil
	})

	h := New(reg, "quiet", nil)
	require.NoError(t, h.Start())

	h.ExpectDispatch(effect.Message{Type: "late.declaration"})

	require.NoError(t, h.Stop(DefaultStopTimeout))
}

func TestHarnessUnknownTaskFailsStart(t *testing.T) {
	h := New(engine.NewRegistry(), "missing", nil)
	err := h.Run(DefaultStopTimeout)
	require.Error(t, err)
	assert.False(t, IsProcessFailure(err))
}

// fakeRecorder captures trace calls in memory.
type fakeRecorder struct {
	mu         sync.Mutex
	runID      string
	rootTask   string
	categories []string
	outcomes   []string
}

func (r *fakeRecorder) BeginRun(runID, rootTask string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runID, r.rootTask = runID, rootTask
	return nil
}

func (r *fakeRecorder) RecordEffect(runID string, seq int64, effectID, category string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories = append(r.categories, category)
	return nil
}

func (r *fakeRecorder) RecordOutcome(runID, effectID, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func TestHarnessRecordsTrace(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("emitter", func(ctx context.Context, env *engine.Env) error {
		return env.Put(effect.Message{Type: "traced"})
	})

	rec := &fakeRecorder{}
	h := New(reg, "emitter", nil, WithRecorder(rec)).
		ExpectDispatch(effect.Message{Type: "traced"})

	require.NoError(t, h.Run(DefaultStopTimeout))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, h.RunID(), rec.runID)
	assert.Equal(t, "emitter", rec.rootTask)
	assert.Contains(t, rec.categories, "dispatch")
	assert.Contains(t, rec.outcomes, "resolved")
}

func TestHarnessDeterministicIDs(t *testing.T) {
	reg := engine.NewRegistry()
	reg.RegisterTask("emitter", func(ctx context.Context, env *engine.Env) error {
		return env.Put(effect.Message{Type: "a"})
	})

	gen := engine.NewSeqGenerator("fx")
	h := New(reg, "emitter", nil, WithIDGenerator(gen)).
		ExpectDispatch(effect.Message{Type: "a"})

	require.NoError(t, h.Run(DefaultStopTimeout))
}
