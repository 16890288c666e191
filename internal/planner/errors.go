package planner

import "errors"

// Planner errors.
var (
	// ErrInvalidPlanDecision is recorded when the oracle names a function
	// that does not resolve under the reaction's platform tag. The step is
	// aborted; the reaction continues with the error as oracle input.
	ErrInvalidPlanDecision = errors.New("invalid plan decision")

	// ErrStepBudgetExceeded is reported on the reaction result when the
	// step budget runs out before a terminal decision. It is never
	// returned as a Go error from React.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")

	// ErrOracleFailed is reported on the reaction result when the oracle
	// keeps failing past the consecutive-failure limit.
	ErrOracleFailed = errors.New("oracle failed persistently")
)
