// Package coordinator turns planner decisions into recorded feedback. It is
// the only writer of session history: it invokes the executor, renders the
// spec's feedback templates against the outcome, bumps counters, and appends
// the step record. Ordinary function failure never escapes as a Go error;
// it is narrated back to the planner through the feedback channel.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pulse/internal/executor"
	"pulse/internal/interp"
	"pulse/internal/logging"
	"pulse/internal/plan"
	"pulse/internal/registry"
	"pulse/internal/session"
)

// Coordinator executes one ActionStep at a time for a session.
type Coordinator struct {
	store  session.Store
	exec   executor.Executor
	logger *zap.Logger
}

// New creates a coordinator bound to a session store and an executor.
func New(store session.Store, exec executor.Executor, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		exec:   exec,
		logger: logging.OrNop(logger).Named("coordinator"),
	}
}

// Execute invokes the resolved spec with the step's bound arguments and
// returns the rendered feedback. The session is mutated in place (counters)
// and the step record is appended to durable history. A non-nil error marks
// a defect (store failure); function failure comes back as error-status
// feedback.
func (c *Coordinator) Execute(ctx context.Context, sess *session.Session, spec *registry.FunctionSpec, step plan.ActionStep) (plan.Feedback, error) {
	if spec == nil {
		// Unreachable when the planner guards resolution, by contract.
		return plan.Feedback{}, fmt.Errorf("execute %s: spec not resolved", step.Function)
	}

	result, err := c.exec.Invoke(ctx, spec, step.Args)
	if err != nil {
		// Invocation defects (no handler, no execution config) are still
		// narratable: the planner hears about them and can route around.
		result = executor.Failedf("cannot invoke %s: %v", spec.Name, err)
	}

	feedback := c.render(sess, spec, step, result)
	if feedback.Status == plan.StatusSuccess {
		c.bumpCounters(ctx, sess, spec)
	}

	rec := plan.StepRecord{Step: step, Feedback: feedback, At: time.Now()}
	if err := c.store.Append(ctx, sess.ID, rec); err != nil {
		return plan.Feedback{}, fmt.Errorf("append step for session %s: %w", sess.ID, err)
	}
	sess.History = append(sess.History, rec)

	c.logger.Debug("step executed",
		zap.String("session", sess.ID),
		zap.String("function", spec.Name),
		zap.String("status", string(feedback.Status)))
	return feedback, nil
}

// Record appends a step that never reached the executor: wait and done
// sentinels, go_to moves, and pre-execution failures (invalid plan decision,
// argument binding, oracle outage). Error records become oracle input on the
// next turn instead of crashing the reaction.
func (c *Coordinator) Record(ctx context.Context, sess *session.Session, step plan.ActionStep, status plan.Status, message string) (plan.Feedback, error) {
	feedback := plan.Feedback{
		ActionID: step.ID,
		Status:   status,
		Message:  message,
	}
	rec := plan.StepRecord{Step: step, Feedback: feedback, At: time.Now()}
	if err := c.store.Append(ctx, sess.ID, rec); err != nil {
		return plan.Feedback{}, fmt.Errorf("append step for session %s: %w", sess.ID, err)
	}
	sess.History = append(sess.History, rec)
	return feedback, nil
}

// render maps the raw executor result onto the spec's feedback templates.
// The value bag holds the bound args, the response payload under
// "response", the session counters, and "error" on failure.
func (c *Coordinator) render(sess *session.Session, spec *registry.FunctionSpec, step plan.ActionStep, result executor.Result) plan.Feedback {
	values := make(map[string]any, len(step.Args)+len(sess.Counters)+2)
	for name, val := range sess.CounterValues() {
		values[name] = val
	}
	for name, val := range step.Args {
		values[name] = val
	}
	if result.Payload != nil {
		values["response"] = result.Payload
	}

	feedback := plan.Feedback{ActionID: step.ID, Payload: result.Payload}
	if result.Failed() {
		values["error"] = result.Message
		feedback.Status = plan.StatusError
		feedback.Message = renderOr(spec.ErrorFeedback, values,
			fmt.Sprintf("%s failed: %s", spec.Name, result.Message))
		return feedback
	}

	feedback.Status = plan.StatusSuccess
	feedback.Message = renderOr(spec.SuccessFeedback, values, result.Message)
	if feedback.Message == "" {
		feedback.Message = fmt.Sprintf("%s completed", spec.Name)
	}
	return feedback
}

// bumpCounters advances the per-function counter and the steps total, in
// memory and in the store, so task templates resolve against fresh values
// on the very next decision.
func (c *Coordinator) bumpCounters(ctx context.Context, sess *session.Session, spec *registry.FunctionSpec) {
	for _, name := range []string{CounterName(spec.Name), "steps"} {
		value := sess.Bump(name)
		if err := c.store.SetCounter(ctx, sess.ID, name, value); err != nil {
			c.logger.Warn("persist counter failed",
				zap.String("session", sess.ID),
				zap.String("counter", name),
				zap.Error(err))
		}
	}
}

// CounterName derives the per-function counter from the function name:
// reply -> replyCount, post_tweet -> postTweetCount.
func CounterName(function string) string {
	parts := strings.Split(function, "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			b.WriteString(part)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	b.WriteString("Count")
	return b.String()
}

func renderOr(template string, values map[string]any, fallback string) string {
	if template == "" {
		return fallback
	}
	return interp.Render(template, values)
}
