package engine

import (
	"context"
	"log/slog"
)

// Engine executes effect-yielding processes against a host Environment.
//
// The engine owns only execution mechanics: it advances a process, hands
// every yielded effect an identifier, reports the effect's lifecycle to
// the environment's Monitor, and interprets the descriptor set
// (take/dispatch/invoke/fork/race/query/channel). What the monitor does
// with those notifications is the harness's business.
//
// Thread-safety model:
//   - Execute(): safe from any goroutine
//   - each process runs on its own goroutine; its Env must only be used
//     from that process's body
type Engine struct {
	reg    *Registry
	ids    IDGenerator
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator replaces the effect/task id generator.
// Use SeqGenerator for deterministic traces in tests.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger replaces the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over the given registry.
// Defaults: UUIDv7 identifiers, slog.Default() logging.
func New(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:    reg,
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute starts the named registered task as the root process and
// returns its handle. The process runs until its body returns, fails, or
// the handle (or ctx) is cancelled.
func (e *Engine) Execute(ctx context.Context, name string, args []any, env Environment) (*Task, error) {
	fn, err := e.reg.task(name)
	if err != nil {
		return nil, err
	}
	return e.spawn(ctx, name, fn, args, env), nil
}

// spawn launches a task body on its own goroutine. Used for the root
// process and for Fork effects; a child's context derives from its
// parent's, so cancelling the parent cancels the whole tree.
func (e *Engine) spawn(parent context.Context, name string, fn TaskFunc, args []any, env Environment) *Task {
	procCtx, cancel := context.WithCancel(parent)
	t := newTask(e.ids.Generate(), name, cancel)

	e.logger.Debug("task starting", "task", name, "id", t.id)

	go func() {
		defer cancel()
		err := fn(procCtx, &Env{eng: e, host: env, ctx: procCtx, args: args})
		t.finish(err)
		e.logger.Debug("task finished", "task", name, "id", t.id, "error", t.Err())
	}()

	return t
}
