// Package planner holds the decision loops: the reaction engine (low-level
// planner) that sequences function calls for one task or event, and the
// high-level planner that synthesizes tasks toward the goal. All
// non-determinism lives behind the oracle interface; the loops themselves
// are deterministic and run under scripted oracles in tests.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pulse/internal/coordinator"
	"pulse/internal/logging"
	"pulse/internal/oracle"
	"pulse/internal/plan"
	"pulse/internal/registry"
	"pulse/internal/session"
)

// Options bound the reaction loop. Zero values get conservative defaults.
type Options struct {
	// MaxSteps is the budget of budget-consuming steps per reaction.
	// Action, go_to, invalid-decision and binding-error steps consume it;
	// wait, done, and empty-visible-set steps do not.
	MaxSteps int

	// OracleTimeout bounds each oracle call.
	OracleTimeout time.Duration

	// ExecTimeout bounds each function execution.
	ExecTimeout time.Duration

	// OracleFailureLimit terminates the reaction after this many
	// consecutive oracle failures.
	OracleFailureLimit int

	// HistoryWindow bounds the history slice handed to the oracle.
	HistoryWindow int
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = 8
	}
	if o.OracleTimeout <= 0 {
		o.OracleTimeout = 30 * time.Second
	}
	if o.ExecTimeout <= 0 {
		o.ExecTimeout = 30 * time.Second
	}
	if o.OracleFailureLimit <= 0 {
		o.OracleFailureLimit = 3
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 20
	}
	return o
}

// loopState is the reaction state machine. PLANNING asks the oracle,
// EXECUTING runs the decision, DONE is terminal.
type loopState int

const (
	statePlanning loopState = iota
	stateExecuting
	stateDone
)

// Input is one reaction invocation. The session is already loaded and under
// exclusive access; the profile fields are an immutable snapshot.
type Input struct {
	Session *session.Session

	Goal        string
	Description string
	WorldInfo   string

	// Task is the task text with counters already substituted: either the
	// profile's task description or a high-level-planner task.
	Task string

	// Event is the external trigger; empty for heartbeat-driven cycles.
	Event string

	Platform string

	// Cancelled is polled between steps; a true return transitions the
	// reaction to DONE after the current step. Nil means never cancelled.
	Cancelled func() bool

	// MaxSteps overrides Options.MaxSteps for this reaction when positive.
	MaxSteps int
}

// Reactor is the low-level planner: it turns one event or task into an
// ordered, feedback-driven step sequence.
type Reactor struct {
	registry *registry.Registry
	coord    *coordinator.Coordinator
	oracle   oracle.Oracle
	opts     Options
	logger   *zap.Logger

	// WorkerLookup resolves a worker id for go_to decisions and
	// action-space narrowing. Nil disables workers.
	WorkerLookup func(name string) *registry.Worker
}

// NewReactor wires the reaction engine.
func NewReactor(reg *registry.Registry, coord *coordinator.Coordinator, orc oracle.Oracle, opts Options, logger *zap.Logger) *Reactor {
	return &Reactor{
		registry: reg,
		coord:    coord,
		oracle:   orc,
		opts:     opts.withDefaults(),
		logger:   logging.OrNop(logger).Named("reactor"),
	}
}

// React runs the decision loop to a terminal state and returns the full
// step sequence. Budget exhaustion and persistent oracle failure are
// reported on the result, not returned; a non-nil error marks a store
// defect that invalidates the reaction.
func (r *Reactor) React(ctx context.Context, in Input) (plan.ReactionResult, error) {
	sess := in.Session
	sess.Platform = in.Platform

	maxSteps := r.opts.MaxSteps
	if in.MaxSteps > 0 {
		maxSteps = in.MaxSteps
	}

	result := plan.ReactionResult{Terminal: plan.TerminalCompleted}
	baseline := len(sess.History)
	budgetUsed := 0
	oracleFailures := 0
	state := statePlanning

	for state != stateDone {
		if in.Cancelled != nil && in.Cancelled() {
			result.Terminal = plan.TerminalCancelled
			break
		}
		if err := ctx.Err(); err != nil {
			result.Terminal = plan.TerminalCancelled
			result.Err = err
			break
		}

		visible := r.visibleFunctions(in.Platform, sess.Location)
		if len(visible) == 0 {
			// The only legal decision without functions is to wait.
			waitStep := r.newStep(plan.ActionWait, in, "no functions visible")
			if _, err := r.coord.Record(ctx, sess, waitStep, plan.StatusSuccess, "waiting: no functions available"); err != nil {
				return result, err
			}
			break
		}

		decision, err := r.decide(ctx, in, visible)
		if err != nil {
			oracleFailures++
			noop := r.newStep(plan.ActionNoop, in, "oracle failure")
			message := fmt.Sprintf("planner unavailable: %v", err)
			if _, rerr := r.coord.Record(ctx, sess, noop, plan.StatusError, message); rerr != nil {
				return result, rerr
			}
			if oracleFailures >= r.opts.OracleFailureLimit {
				result.Terminal = plan.TerminalOracleFailed
				result.Err = fmt.Errorf("%w: %v", ErrOracleFailed, err)
				break
			}
			continue
		}
		oracleFailures = 0

		if decision.State != nil {
			sess.State = decision.State
		}

		if decision.Type.Terminal() {
			step := r.newStep(decision.Type, in, decision.Reasoning)
			message := "waiting"
			if decision.Type == plan.ActionDone {
				message = "task complete"
			}
			if _, err := r.coord.Record(ctx, sess, step, plan.StatusSuccess, message); err != nil {
				return result, err
			}
			break
		}

		state = stateExecuting
		consumed, err := r.executeDecision(ctx, in, decision)
		if err != nil {
			return result, err
		}
		if consumed {
			budgetUsed++
		}
		state = statePlanning

		if budgetUsed >= maxSteps {
			result.Terminal = plan.TerminalBudgetExceeded
			result.Err = fmt.Errorf("%w: %d steps", ErrStepBudgetExceeded, budgetUsed)
			break
		}
	}

	result.Steps = sess.History[baseline:]
	r.logger.Debug("reaction finished",
		zap.String("session", sess.ID),
		zap.String("terminal", string(result.Terminal)),
		zap.Int("steps", len(result.Steps)))
	return result, nil
}

// Step runs exactly one planning/execution turn and returns its record.
// Terminal decisions still produce a record; the caller decides whether to
// continue.
func (r *Reactor) Step(ctx context.Context, in Input) (plan.StepRecord, error) {
	in.MaxSteps = 1
	result, err := r.React(ctx, in)
	if err != nil {
		return plan.StepRecord{}, err
	}
	if len(result.Steps) == 0 {
		return plan.StepRecord{}, fmt.Errorf("reaction produced no steps")
	}
	return result.Steps[0], nil
}

// executeDecision runs one non-terminal decision and reports whether it
// consumed budget.
func (r *Reactor) executeDecision(ctx context.Context, in Input, decision plan.Decision) (bool, error) {
	sess := in.Session

	switch decision.Type {
	case plan.ActionGoTo:
		step := r.newStep(plan.ActionGoTo, in, decision.Reasoning)
		step.Location = decision.Location
		if r.WorkerLookup == nil || r.WorkerLookup(decision.Location) == nil {
			message := fmt.Sprintf("%v: unknown location %q", ErrInvalidPlanDecision, decision.Location)
			if _, err := r.coord.Record(ctx, sess, step, plan.StatusError, message); err != nil {
				return false, err
			}
			return true, nil
		}
		sess.Location = decision.Location
		if _, err := r.coord.Record(ctx, sess, step, plan.StatusSuccess, fmt.Sprintf("moved to %s", decision.Location)); err != nil {
			return false, err
		}
		return true, nil

	case plan.ActionCallFunction, plan.ActionContinueFunction:
		step := r.newStep(decision.Type, in, decision.Reasoning)
		step.Function = decision.Function
		step.Args = decision.Args

		spec, err := r.registry.Resolve(decision.Function, in.Platform)
		if err != nil {
			message := fmt.Sprintf("%v: %v", ErrInvalidPlanDecision, err)
			if _, rerr := r.coord.Record(ctx, sess, step, plan.StatusError, message); rerr != nil {
				return false, rerr
			}
			return true, nil
		}

		bound, err := spec.BindArgs(decision.Args)
		if err != nil {
			if _, rerr := r.coord.Record(ctx, sess, step, plan.StatusError, fmt.Sprintf("argument binding: %v", err)); rerr != nil {
				return false, rerr
			}
			return true, nil
		}
		step.Args = bound

		execCtx, cancel := context.WithTimeout(ctx, r.opts.ExecTimeout)
		_, err = r.coord.Execute(execCtx, sess, spec, step)
		cancel()
		if err != nil {
			return false, err
		}
		return true, nil

	default:
		// Unknown non-terminal types are invalid decisions.
		step := r.newStep(plan.ActionNoop, in, decision.Reasoning)
		message := fmt.Sprintf("%v: unsupported action %q", ErrInvalidPlanDecision, decision.Type)
		if _, err := r.coord.Record(ctx, sess, step, plan.StatusError, message); err != nil {
			return false, err
		}
		return true, nil
	}
}

// decide asks the oracle for the next decision under the per-call timeout.
func (r *Reactor) decide(ctx context.Context, in Input, visible []*registry.FunctionSpec) (plan.Decision, error) {
	sess := in.Session
	dc := oracle.DecisionContext{
		Mode:        oracle.ModeReaction,
		Goal:        in.Goal,
		Description: in.Description,
		WorldInfo:   in.WorldInfo,
		Task:        in.Task,
		Event:       in.Event,
		Platform:    in.Platform,
		Location:    sess.Location,
		Functions:   visible,
		History:     sess.RecentHistory(r.opts.HistoryWindow),
		Counters:    sess.Counters,
		State:       sess.State,
	}

	octx, cancel := context.WithTimeout(ctx, r.opts.OracleTimeout)
	defer cancel()

	decision, err := r.oracle.Decide(octx, dc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return plan.Decision{}, fmt.Errorf("%w: decision timed out: %v", oracle.ErrOracleUnavailable, err)
		}
		return plan.Decision{}, err
	}
	// Malformed action types flow through to executeDecision, which
	// records them as invalid plan decisions.
	return decision, nil
}

// visibleFunctions lists the platform's registered functions, narrowed to
// the current worker's action space when workers are configured.
func (r *Reactor) visibleFunctions(platform, location string) []*registry.FunctionSpec {
	visible := r.registry.List(platform)
	if location == "" || r.WorkerLookup == nil {
		return visible
	}
	return registry.Narrow(visible, r.WorkerLookup(location))
}

func (r *Reactor) newStep(typ plan.ActionType, in Input, reasoning string) plan.ActionStep {
	return plan.ActionStep{
		ID:        uuid.NewString(),
		Type:      typ,
		Platform:  in.Platform,
		Reasoning: reasoning,
		DecidedAt: time.Now(),
	}
}
