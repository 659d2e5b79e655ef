package engine

import (
	"context"
	"fmt"
	"sync"
)

// TaskFunc is the body of a process or forked child task. It communicates
// with its host exclusively by yielding effects through env.
type TaskFunc func(ctx context.Context, env *Env) error

// HandlerFunc backs an Invoke effect: a named function the process can
// call and await.
type HandlerFunc func(ctx context.Context, args ...any) (any, error)

// CallbackHandlerFunc backs an InvokeCallback effect. The handler must
// eventually call done exactly once with the result or error.
type CallbackHandlerFunc func(ctx context.Context, args []any, done func(any, error))

// Registry maps names to task bodies and invoke handlers. Fork effects
// and root processes refer to tasks by registered name, which keeps every
// effect descriptor pure data.
//
// Thread-safety: registration and lookup are safe from any goroutine.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]TaskFunc
	funcs map[string]HandlerFunc
	cps   map[string]CallbackHandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]TaskFunc),
		funcs: make(map[string]HandlerFunc),
		cps:   make(map[string]CallbackHandlerFunc),
	}
}

// RegisterTask registers a task body under name, replacing any previous
// registration.
func (r *Registry) RegisterTask(name string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = fn
}

// RegisterHandler registers an invoke handler under name.
func (r *Registry) RegisterHandler(name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// RegisterCallbackHandler registers a callback-style invoke handler.
func (r *Registry) RegisterCallbackHandler(name string, fn CallbackHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cps[name] = fn
}

func (r *Registry) task(name string) (TaskFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("task %q not registered", name)
	}
	return fn, nil
}

func (r *Registry) handler(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

func (r *Registry) callbackHandler(name string) (CallbackHandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.cps[name]
	return fn, ok
}
