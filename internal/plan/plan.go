// Package plan provides the shared planning and feedback types used across
// pulse packages. This package exists to break import cycles between the
// registry, session, oracle, and planner layers. Types here are foundational
// data structures with no dependencies beyond the standard library.
package plan

import (
	"time"
)

// ActionType identifies the kind of decision the planner oracle produced.
type ActionType string

const (
	// ActionCallFunction invokes a named function with bound arguments.
	ActionCallFunction ActionType = "call_function"
	// ActionContinueFunction re-enters the in-flight function with refined
	// arguments instead of starting a new call.
	ActionContinueFunction ActionType = "continue_function"
	// ActionWait ends the reaction without further action.
	ActionWait ActionType = "wait"
	// ActionGoTo switches the session's current worker location.
	ActionGoTo ActionType = "go_to"
	// ActionDone marks the task as complete and ends the reaction.
	ActionDone ActionType = "done"

	// ActionNoop marks a history record for a step that produced no
	// decision at all, e.g. an oracle outage. The oracle never returns it;
	// Valid rejects it.
	ActionNoop ActionType = "noop"
)

// Terminal reports whether the action ends a reaction.
func (a ActionType) Terminal() bool {
	return a == ActionWait || a == ActionDone
}

// Valid reports whether the action type is one the engine understands.
func (a ActionType) Valid() bool {
	switch a {
	case ActionCallFunction, ActionContinueFunction, ActionWait, ActionGoTo, ActionDone:
		return true
	}
	return false
}

// Status classifies the outcome of one executed action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ActionStep is a single planner decision bound to a session context. It is
// transient: after execution it is folded into session history as part of a
// StepRecord and never persisted on its own.
type ActionStep struct {
	ID        string         `json:"id"`
	Type      ActionType     `json:"type"`
	Function  string         `json:"function,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Platform  string         `json:"platform"`
	Location  string         `json:"location,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	DecidedAt time.Time      `json:"decided_at"`
}

// Feedback is the outcome of one ActionStep. Message is the rendered
// feedback text; Payload carries the raw function return values and feeds
// placeholder substitution for the next decision.
type Feedback struct {
	ActionID string         `json:"action_id"`
	Status   Status         `json:"status"`
	Message  string         `json:"message"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// StepRecord pairs an executed step with its feedback. Session history is an
// ordered sequence of these.
type StepRecord struct {
	Step     ActionStep `json:"step"`
	Feedback Feedback   `json:"feedback"`
	At       time.Time  `json:"at"`
}

// Decision is the structured choice returned by the planner oracle. For
// reaction decisions Type/Function/Args/Location are populated; for task
// synthesis Task and TaskReasoning carry the new task. State, when present,
// echoes the oracle's updated view of the plan hierarchy and is persisted on
// the session.
type Decision struct {
	Type          ActionType     `json:"type"`
	Function      string         `json:"function,omitempty"`
	Args          map[string]any `json:"args,omitempty"`
	Location      string         `json:"location,omitempty"`
	Reasoning     string         `json:"reasoning,omitempty"`
	Task          string         `json:"task,omitempty"`
	TaskReasoning string         `json:"task_reasoning,omitempty"`
	State         *State         `json:"state,omitempty"`
}

// State is the planner-state snapshot carried on a session between cycles.
type State struct {
	HLP         *HighLevelPlan `json:"hlp,omitempty"`
	CurrentTask *CurrentTask   `json:"current_task,omitempty"`
}

// HighLevelPlan is the goal-directed plan the high-level planner maintains
// across heartbeats.
type HighLevelPlan struct {
	PlanID                  string   `json:"plan_id"`
	ObservationReflection   string   `json:"observation_reflection,omitempty"`
	Plan                    []string `json:"plan,omitempty"`
	PlanReasoning           string   `json:"plan_reasoning,omitempty"`
	CurrentStateOfExecution string   `json:"current_state_of_execution,omitempty"`
	ChangeIndicator         string   `json:"change_indicator,omitempty"`
	Log                     []string `json:"log,omitempty"`
}

// LowLevelPlan is the per-task step plan the reaction engine works through.
type LowLevelPlan struct {
	PlanID            string   `json:"plan_id"`
	PlanReasoning     string   `json:"plan_reasoning,omitempty"`
	SituationAnalysis string   `json:"situation_analysis,omitempty"`
	Plan              []string `json:"plan,omitempty"`
	ChangeIndicator   string   `json:"change_indicator,omitempty"`
	Reflection        string   `json:"reflection,omitempty"`
}

// CurrentTask is the task the agent is working on right now, with the
// low-level plan attached.
type CurrentTask struct {
	Task          string        `json:"task"`
	TaskReasoning string        `json:"task_reasoning,omitempty"`
	LocationID    string        `json:"location_id,omitempty"`
	LLP           *LowLevelPlan `json:"llp,omitempty"`
}

// Task is one queued high-level-planner task awaiting a reaction cycle.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Reasoning   string    `json:"reasoning,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TerminalStatus describes how a reaction ended.
type TerminalStatus string

const (
	// TerminalCompleted means the oracle issued a wait or done decision.
	TerminalCompleted TerminalStatus = "completed"
	// TerminalBudgetExceeded means the step budget ran out before a
	// terminal decision.
	TerminalBudgetExceeded TerminalStatus = "budget_exceeded"
	// TerminalOracleFailed means the oracle kept failing past the
	// consecutive-failure limit.
	TerminalOracleFailed TerminalStatus = "oracle_failed"
	// TerminalCancelled means the session was cancelled between steps.
	TerminalCancelled TerminalStatus = "cancelled"
)

// ReactionResult is the full outcome of one reaction invocation: the ordered
// step sequence plus how the loop ended. Err is populated for reportable
// terminal conditions (budget exhaustion, persistent oracle failure) so
// callers can inspect the cause without losing the partial sequence.
type ReactionResult struct {
	Steps    []StepRecord   `json:"steps"`
	Terminal TerminalStatus `json:"terminal"`
	Err      error          `json:"-"`
}
