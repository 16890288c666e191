// Package oracle isolates the planner's decision source behind a pure
// interface. The control loop stays deterministic and unit-testable: tests
// script decisions, deployments point at a hosted model. The oracle is a
// collaborator, never the owner of control flow.
package oracle

import (
	"context"
	"errors"

	"pulse/internal/plan"
	"pulse/internal/registry"
)

// ErrOracleUnavailable marks a transient decision-source failure. The
// reaction loop maps it to error feedback and keeps going; only a run of
// consecutive failures terminates the reaction.
var ErrOracleUnavailable = errors.New("planner oracle unavailable")

// Mode selects what kind of decision is being requested.
type Mode string

const (
	// ModeReaction asks for the next action in a running reaction.
	ModeReaction Mode = "reaction"
	// ModeTask asks the high-level planner for a new task, no event input.
	ModeTask Mode = "task"
)

// DecisionContext is everything the oracle may look at for one decision.
// It is assembled fresh per step from the profile snapshot, the session,
// and the platform-visible function set.
type DecisionContext struct {
	Mode Mode

	// Profile snapshot.
	Goal        string
	Description string
	WorldInfo   string

	// Task is the task description with placeholders already substituted
	// from session counters.
	Task string

	// Event is the external input that triggered the reaction; empty for
	// heartbeat-driven cycles.
	Event string

	Platform string
	Location string

	// Functions is the platform-visible set, in registration order.
	Functions []*registry.FunctionSpec

	// History is a bounded window of recent step records.
	History []plan.StepRecord

	// Counters mirrors the session counters at decision time.
	Counters map[string]int

	// State echoes the persisted plan hierarchy back to the oracle.
	State *plan.State
}

// Oracle produces one structured decision for a context, in bounded time.
// Implementations must honor ctx cancellation and deadlines.
type Oracle interface {
	Decide(ctx context.Context, dc DecisionContext) (plan.Decision, error)
}
