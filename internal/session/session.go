// Package session defines the per-session durable state contract: history,
// counters, the high-level task queue, and planner state. The package holds
// no planning logic; it is pure persistence plus the per-session exclusive
// access primitive the concurrency model requires.
package session

import (
	"context"
	"time"

	"pulse/internal/plan"
)

// Session is the continuation context for one opaque session id. History is
// append-only and only the coordinator appends to it; counters, the task
// queue, and planner state mutate in place between cycles.
type Session struct {
	ID string `json:"id"`

	// History is the ordered record of executed steps and their feedback.
	History []plan.StepRecord `json:"history,omitempty"`

	// Counters holds scalar values derivable from history, e.g. replyCount.
	// They feed task-description template substitution.
	Counters map[string]int `json:"counters,omitempty"`

	// Tasks is the high-level planner's pending queue, drained by reaction
	// heartbeats in order.
	Tasks []plan.Task `json:"tasks,omitempty"`

	// Platform is the last platform tag the session reacted under.
	Platform string `json:"platform,omitempty"`

	// Location is the current worker id, switched by go_to decisions.
	Location string `json:"location,omitempty"`

	// State is the planner-state snapshot echoed to the oracle.
	State *plan.State `json:"state,omitempty"`

	// LastMainTick and LastTickHistoryLen guard main-heartbeat idempotence:
	// a tick enqueues nothing unless history grew since the previous tick.
	LastMainTick       time.Time `json:"last_main_tick,omitempty"`
	LastTickHistoryLen int       `json:"last_tick_history_len,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Counter returns the named counter, zero when unset.
func (s *Session) Counter(name string) int {
	return s.Counters[name]
}

// Bump increments the named counter and returns the new value.
func (s *Session) Bump(name string) int {
	if s.Counters == nil {
		s.Counters = make(map[string]int)
	}
	s.Counters[name]++
	return s.Counters[name]
}

// CounterValues exposes the counters as a template value bag.
func (s *Session) CounterValues() map[string]any {
	values := make(map[string]any, len(s.Counters))
	for name, val := range s.Counters {
		values[name] = val
	}
	return values
}

// RecentHistory returns at most the last n records, preserving order. The
// oracle context carries a bounded window, not the full history.
func (s *Session) RecentHistory(n int) []plan.StepRecord {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// PushTask appends a task to the queue.
func (s *Session) PushTask(task plan.Task) {
	s.Tasks = append(s.Tasks, task)
}

// PopTask removes and returns the head task. ok is false on an empty queue.
func (s *Session) PopTask() (task plan.Task, ok bool) {
	if len(s.Tasks) == 0 {
		return plan.Task{}, false
	}
	task = s.Tasks[0]
	s.Tasks = s.Tasks[1:]
	return task, true
}

// Store is the persistence contract for sessions. Load creates the session
// lazily on first reference; ErrNotFound never escapes it. Implementations
// must be safe for concurrent use across different session ids; per-session
// serialization is the caller's job (see Locks).
type Store interface {
	// Load returns the session for the id, creating an empty one when the
	// id has never been seen.
	Load(ctx context.Context, id string) (*Session, error)

	// Append adds one step record to the session's history and bumps
	// UpdatedAt. Append-only: implementations never rewrite prior records.
	Append(ctx context.Context, id string, rec plan.StepRecord) error

	// Counter reads a named counter, zero when unset.
	Counter(ctx context.Context, id, name string) (int, error)

	// SetCounter writes a named counter.
	SetCounter(ctx context.Context, id, name string, value int) error

	// SaveState persists the session's mutable fields (counters, task
	// queue, planner state, platform, location, tick guards). History is
	// untouched; Append owns it.
	SaveState(ctx context.Context, sess *Session) error

	// Reset clears history, counters, tasks, and planner state for the id.
	Reset(ctx context.Context, id string) error
}
