package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/probelab/sagaprobe/internal/bus"
	"github.com/probelab/sagaprobe/internal/effect"
	"github.com/probelab/sagaprobe/internal/engine"
	"github.com/probelab/sagaprobe/internal/track"
)

// DefaultStopTimeout is the drain timeout used by callers that have no
// opinion. A non-positive timeout disables the race entirely: the drain
// waits unconditionally.
const DefaultStopTimeout = 250 * time.Millisecond

// Recorder persists the effect trace of a run. Implemented by
// store.Store; recording failures are logged, never fatal to the run.
type Recorder interface {
	BeginRun(runID, rootTask string) error
	RecordEffect(runID string, seq int64, effectID, category string, payload []byte) error
	RecordOutcome(runID, effectID, outcome string) error
}

// Harness runs one process against a simulated environment, records
// every effect it yields, and checks declared expectations once the run
// has fully stopped.
//
// The authoring surface is chainable: every Expect*/Provide*/Inject*
// call returns the same handle. Declare expectations before Start; the
// ledger is read-only during and after the run.
//
// All run-state mutation (multiset, tracker, bus flags) is serialized
// through the harness's mutex, which acts as the single logical owner
// that keeps recording order deterministic.
type Harness struct {
	reg    *engine.Registry
	eng    *engine.Engine
	task   string
	args   []any
	runID  string
	logger *slog.Logger
	eq     effect.Equal
	rec    Recorder

	mu            sync.Mutex
	ms            *effect.Multiset
	ledger        *Ledger
	tracker       *track.Tracker
	bus           *bus.Bus
	tasks         *taskQueue
	state         any
	blockedEffect string
	seq           int64

	started   bool
	stopped   bool
	stopDone  chan struct{}
	settled   error
	handle    *engine.Task
	runCancel context.CancelFunc

	sched *scheduler
}

// Option configures a Harness.
type Option func(*Harness)

// WithEqual replaces the matching predicate used for expectation
// checking. Default: effect.DeepEqual.
func WithEqual(eq effect.Equal) Option {
	return func(h *Harness) { h.eq = eq }
}

// WithLogger replaces the harness logger. Default discards, so test
// output stays quiet unless a caller opts in.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithRecorder installs trace persistence for the run.
func WithRecorder(rec Recorder) Option {
	return func(h *Harness) { h.rec = rec }
}

// WithIDGenerator replaces the effect/task id generator, for
// deterministic traces.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(h *Harness) {
		h.eng = engine.New(h.reg, engine.WithIDGenerator(g), engine.WithLogger(h.logger))
	}
}

// New creates a harness that will run the named registered task.
// One harness instance targets exactly one run; all registries are
// constructed fresh here and never shared between instances.
func New(reg *engine.Registry, task string, args []any, opts ...Option) *Harness {
	h := &Harness{
		reg:      reg,
		task:     task,
		args:     args,
		runID:    engine.UUIDv7Generator{}.Generate(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		eq:       effect.DeepEqual,
		ms:       effect.NewMultiset(),
		ledger:   &Ledger{},
		tracker:  track.New(),
		bus:      bus.New(),
		tasks:    newTaskQueue(),
		stopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.eng == nil {
		h.eng = engine.New(reg, engine.WithLogger(h.logger))
	}
	h.sched = newScheduler(h)
	h.tracker.SetSpawnHook(h.sched.markDirty)
	return h
}

// RunID identifies this run in the trace store.
func (h *Harness) RunID() string { return h.runID }

// HandleInvoke registers a mock handler backing Invoke effects.
func (h *Harness) HandleInvoke(name string, fn engine.HandlerFunc) *Harness {
	h.reg.RegisterHandler(name, fn)
	return h
}

// HandleInvokeCallback registers a mock callback-style handler backing
// InvokeCallback effects.
func (h *Harness) HandleInvokeCallback(name string, fn engine.CallbackHandlerFunc) *Harness {
	h.reg.RegisterCallbackHandler(name, fn)
	return h
}

// Expect declares a generic expectation: an effect deep-equal to value
// must be recorded under category during the run.
func (h *Harness) Expect(label string, category effect.Category, value any) *Harness {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		h.logger.Warn("expectation declared after start; ignored", "label", label)
		return h
	}
	h.ledger.Add(Expectation{Label: label, Category: category, Value: value})
	return h
}

// ExpectWait declares that the process waits for an input matching
// pattern.
func (h *Harness) ExpectWait(pattern string) *Harness {
	return h.Expect(fmt.Sprintf("wait for input %q", pattern),
		effect.CategoryWaitInput, effect.WaitInput{Pattern: pattern})
}

// ExpectWaitMaybe declares the optional wait variant.
func (h *Harness) ExpectWaitMaybe(pattern string) *Harness {
	return h.Expect(fmt.Sprintf("maybe wait for input %q", pattern),
		effect.CategoryWaitInput, effect.WaitInput{Pattern: pattern, Maybe: true})
}

// ExpectDispatch declares that the process dispatches msg.
func (h *Harness) ExpectDispatch(msg effect.Message) *Harness {
	return h.Expect(fmt.Sprintf("dispatch %q", msg.Type),
		effect.CategoryDispatch, effect.Dispatch{Message: msg})
}

// ExpectDispatchResolved declares the resolved dispatch variant.
func (h *Harness) ExpectDispatchResolved(msg effect.Message) *Harness {
	return h.Expect(fmt.Sprintf("dispatch (resolved) %q", msg.Type),
		effect.CategoryDispatch, effect.Dispatch{Message: msg, Resolve: true})
}

// ExpectDispatchMaybe declares the optional dispatch variant.
func (h *Harness) ExpectDispatchMaybe(msg effect.Message) *Harness {
	return h.Expect(fmt.Sprintf("dispatch (maybe) %q", msg.Type),
		effect.CategoryDispatch, effect.Dispatch{Message: msg, Maybe: true})
}

// ExpectRace declares that the process races the given sub-operations.
func (h *Harness) ExpectRace(ops map[string]any) *Harness {
	return h.Expect("race", effect.CategoryRace, effect.Race{Ops: ops})
}

// ExpectInvoke declares that the process invokes fn with args.
func (h *Harness) ExpectInvoke(fn string, args ...any) *Harness {
	return h.Expect(fmt.Sprintf("invoke %q", fn),
		effect.CategoryInvoke, effect.Invoke{Fn: fn, Args: args})
}

// ExpectInvokeCallback declares a callback-style invocation of fn.
func (h *Harness) ExpectInvokeCallback(fn string, args ...any) *Harness {
	return h.Expect(fmt.Sprintf("invoke (callback) %q", fn),
		effect.CategoryInvokeCallback, effect.InvokeCallback{Fn: fn, Args: args})
}

// ExpectFork declares that the process forks the named task with args.
func (h *Harness) ExpectFork(task string, args ...any) *Harness {
	return h.Expect(fmt.Sprintf("fork %q", task),
		effect.CategoryFork, effect.Fork{Task: task, Args: args})
}

// ExpectQuery declares that the process queries the named selector.
func (h *Harness) ExpectQuery(selector string) *Harness {
	return h.Expect(fmt.Sprintf("query %q", selector),
		effect.CategoryQuery, effect.Query{Selector: selector})
}

// ExpectChannel declares that the process acquires an input channel for
// pattern.
func (h *Harness) ExpectChannel(pattern string) *Harness {
	return h.Expect(fmt.Sprintf("acquire channel %q", pattern),
		effect.CategoryChannel, effect.Channel{Pattern: pattern})
}

// ProvideState sets the state visible to Query effects.
func (h *Harness) ProvideState(state any) *Harness {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
	return h
}

// InjectInput feeds an input toward the process: published immediately
// if the process is blocked waiting for input, queued FIFO otherwise.
func (h *Harness) InjectInput(msg effect.Message) *Harness {
	published := h.bus.Inject(msg)
	h.logger.Debug("input injected", "type", msg.Type, "published", published)
	return h
}

// Start begins execution of the process.
func (h *Harness) Start() error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("harness already started")
	}
	h.started = true
	h.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	h.runCancel = cancel

	go h.tasks.run()

	if h.rec != nil {
		if err := h.rec.BeginRun(h.runID, h.task); err != nil {
			h.logger.Warn("trace recording disabled: begin run failed", "error", err)
			h.rec = nil
		}
	}

	handle, err := h.eng.Execute(runCtx, h.task, h.args, hostEnv{h})
	if err != nil {
		cancel()
		h.tasks.Close()
		return fmt.Errorf("start process: %w", err)
	}
	h.mu.Lock()
	h.handle = handle
	h.mu.Unlock()

	h.logger.Info("run started", "run", h.runID, "task", h.task)
	return nil
}

// Stop requests the drain/cancel sequence and returns the settlement:
// nil on success, a ProcessError if the process itself failed (taking
// precedence), or the first UnmetExpectationError from the ledger check.
// A non-positive timeout waits for pending work unconditionally.
//
// Stop is idempotent; repeated calls return the first settlement, and a
// call that loses the race to a Stop still in flight waits for it.
func (h *Harness) Stop(timeout time.Duration) error {
	h.mu.Lock()
	if !h.started || h.handle == nil {
		h.mu.Unlock()
		return fmt.Errorf("harness not started")
	}
	if h.stopped {
		h.mu.Unlock()
		<-h.stopDone
		h.mu.Lock()
		settled := h.settled
		h.mu.Unlock()
		return settled
	}
	h.stopped = true
	h.mu.Unlock()

	settlement := h.settle(timeout)

	h.mu.Lock()
	h.settled = settlement
	h.mu.Unlock()
	close(h.stopDone)
	return settlement
}

// Run is Start followed by Stop.
func (h *Harness) Run(timeout time.Duration) error {
	if err := h.Start(); err != nil {
		return err
	}
	return h.Stop(timeout)
}

// settle drives the scheduler to completion and evaluates the ledger.
func (h *Harness) settle(timeout time.Duration) error {
	h.sched.drain(timeout)

	// Drain passed (or timed out): cancel the process tree and await its
	// own completion signal. Cancel is a no-op on a finished process.
	h.handle.Cancel()
	<-h.handle.Done()

	h.tasks.Close()
	h.runCancel()

	procErr := h.handle.Err()

	h.mu.Lock()
	checkErr := h.ledger.Check(h.ms, h.eq)
	h.mu.Unlock()

	h.logger.Info("run stopped", "run", h.runID,
		"process_error", procErr, "expectations_met", checkErr == nil)

	// Process failure takes precedence over expectation diagnostics.
	if procErr != nil {
		return &ProcessError{Err: procErr}
	}
	return checkErr
}

// Remaining returns the unmatched effects still recorded for a
// category. Diagnostics only.
func (h *Harness) Remaining(c effect.Category) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ms.Snapshot(c)
}
