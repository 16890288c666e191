// Package executor turns resolved function specs into outcomes. Two
// implementations cover the data model's execution configs: Local routes to
// named Go handlers through worker environments, HTTPCaller executes the
// spec's HTTP descriptor. Planning never reaches into this package; it only
// sees the Result the coordinator folds into feedback.
package executor

import (
	"context"
	"errors"
	"fmt"

	"pulse/internal/registry"
)

// Status classifies an invocation outcome.
type Status string

const (
	// StatusDone means the function completed.
	StatusDone Status = "done"
	// StatusFailed means the function ran and failed: non-2xx responses,
	// handler errors, timeouts. Ordinary failures, never Go errors.
	StatusFailed Status = "failed"
)

// Result is the raw outcome of one invocation before feedback rendering.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Failed reports whether the invocation failed.
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

// Executor invokes a function spec with bound arguments. Ordinary function
// failure comes back as a StatusFailed Result with a nil error; a non-nil
// error means the invocation could not be attempted at all (no handler, no
// execution config) and the coordinator maps it to error feedback too.
type Executor interface {
	Invoke(ctx context.Context, spec *registry.FunctionSpec, args map[string]any) (Result, error)
}

// Executor errors.
var (
	// ErrNoExecution is returned when a spec carries neither an HTTP
	// descriptor nor a worker binding the executor can route.
	ErrNoExecution = errors.New("function has no execution config")

	// ErrUnknownHandler is returned by the local executor when no handler
	// is registered for the function name.
	ErrUnknownHandler = errors.New("no handler for function")

	// ErrUnknownWorker is returned when a spec is bound to a worker the
	// local executor does not know.
	ErrUnknownWorker = errors.New("unknown worker")
)

// Failedf builds a failed Result from a format string.
func Failedf(format string, args ...any) Result {
	return Result{Status: StatusFailed, Message: fmt.Sprintf(format, args...)}
}
