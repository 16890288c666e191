package executor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"pulse/internal/logging"
	"pulse/internal/registry"
)

// Handler is a named Go implementation of a function. env is the bound
// worker's environment bag (nil for unbound functions). A returned error
// becomes a failed Result, not an invocation error.
type Handler func(ctx context.Context, args map[string]any, env map[string]any) (message string, payload map[string]any, err error)

// Local routes invocations to in-process handlers, resolving the spec's
// worker binding to its environment. It serves tests, dry runs, and
// deployments that implement functions in Go rather than HTTP descriptors.
type Local struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	workers  map[string]*registry.Worker
	logger   *zap.Logger
}

// NewLocal creates an empty local executor.
func NewLocal(logger *zap.Logger) *Local {
	return &Local{
		handlers: make(map[string]Handler),
		workers:  make(map[string]*registry.Worker),
		logger:   logging.OrNop(logger).Named("executor"),
	}
}

// Handle binds a handler to a function name. Re-binding replaces.
func (l *Local) Handle(name string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[name] = h
}

// AddWorker registers a worker so specs bound to it resolve an environment.
func (l *Local) AddWorker(w *registry.Worker) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.workers[w.Name] = w
}

// Worker returns the named worker, nil when unknown.
func (l *Local) Worker(name string) *registry.Worker {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.workers[name]
}

func (l *Local) Invoke(ctx context.Context, spec *registry.FunctionSpec, args map[string]any) (Result, error) {
	l.mu.RLock()
	handler, ok := l.handlers[spec.Name]
	var env map[string]any
	if spec.Worker != "" {
		worker, known := l.workers[spec.Worker]
		if !known {
			l.mu.RUnlock()
			return Result{}, fmt.Errorf("%w: %s (function %s)", ErrUnknownWorker, spec.Worker, spec.Name)
		}
		env = worker.Environment
	}
	l.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownHandler, spec.Name)
	}

	message, payload, err := handler(ctx, args, env)
	if err != nil {
		l.logger.Debug("handler failed",
			zap.String("function", spec.Name),
			zap.Error(err))
		return Result{Status: StatusFailed, Message: err.Error(), Payload: payload}, nil
	}
	return Result{Status: StatusDone, Message: message, Payload: payload}, nil
}
