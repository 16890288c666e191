package oracle

import (
	"context"
	"sync"

	"pulse/internal/plan"
)

type scriptEntry struct {
	decision plan.Decision
	err      error
}

// Scripted replays a fixed sequence of decisions. It backs every control-loop
// test and the daemon's dry-run mode. When the script runs out it keeps
// returning Fallback (wait by default), so a reaction always terminates.
type Scripted struct {
	mu     sync.Mutex
	script []scriptEntry
	calls  []DecisionContext

	// Fallback is returned after the script is exhausted.
	Fallback plan.Decision
}

// NewScripted builds a scripted oracle that will return the given decisions
// in order.
func NewScripted(decisions ...plan.Decision) *Scripted {
	s := &Scripted{
		Fallback: plan.Decision{Type: plan.ActionWait, Reasoning: "script exhausted"},
	}
	for _, d := range decisions {
		s.script = append(s.script, scriptEntry{decision: d})
	}
	return s
}

// Push appends a decision to the script.
func (s *Scripted) Push(d plan.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, scriptEntry{decision: d})
}

// PushErr appends a failing step to the script, interleaved in sequence
// position with the decisions around it.
func (s *Scripted) PushErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, scriptEntry{err: err})
}

// Decide pops the next scripted entry. Calls are recorded for assertion.
func (s *Scripted) Decide(ctx context.Context, dc DecisionContext) (plan.Decision, error) {
	if err := ctx.Err(); err != nil {
		return plan.Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, dc)

	idx := len(s.calls) - 1
	if idx < len(s.script) {
		entry := s.script[idx]
		if entry.err != nil {
			return plan.Decision{}, entry.err
		}
		return entry.decision, nil
	}
	return s.Fallback, nil
}

// Calls returns the decision contexts seen so far, in order.
func (s *Scripted) Calls() []DecisionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DecisionContext(nil), s.calls...)
}
