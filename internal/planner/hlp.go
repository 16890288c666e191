package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pulse/internal/logging"
	"pulse/internal/oracle"
	"pulse/internal/plan"
	"pulse/internal/session"
)

// TickInput is one high-level-planner tick for a session already under
// exclusive access.
type TickInput struct {
	Session *session.Session

	Goal        string
	Description string
	WorldInfo   string

	// Task is the profile's substituted task description, given to the
	// oracle as synthesis context.
	Task string
}

// HLP is the goal-directed planner: on each main-heartbeat tick it decides
// whether to synthesize a new task for the queue. Draining happens on
// reaction ticks, not here.
type HLP struct {
	oracle oracle.Oracle
	opts   Options
	logger *zap.Logger
}

// NewHLP wires the high-level planner.
func NewHLP(orc oracle.Oracle, opts Options, logger *zap.Logger) *HLP {
	return &HLP{
		oracle: orc,
		opts:   opts.withDefaults(),
		logger: logging.OrNop(logger).Named("hlp"),
	}
}

// Tick enqueues at most one synthesized task. It is idempotent within a
// heartbeat window: with a non-empty queue, or with no new history since
// the previous tick, it does nothing. The caller persists the session
// afterwards.
func (h *HLP) Tick(ctx context.Context, in TickInput) (enqueued bool, err error) {
	sess := in.Session

	if len(sess.Tasks) > 0 {
		return false, nil
	}
	if !sess.LastMainTick.IsZero() && len(sess.History) == sess.LastTickHistoryLen {
		h.logger.Debug("tick skipped, no new information", zap.String("session", sess.ID))
		return false, nil
	}

	dc := oracle.DecisionContext{
		Mode:        oracle.ModeTask,
		Goal:        in.Goal,
		Description: in.Description,
		WorldInfo:   in.WorldInfo,
		Task:        in.Task,
		Platform:    sess.Platform,
		Location:    sess.Location,
		History:     sess.RecentHistory(h.opts.HistoryWindow),
		Counters:    sess.Counters,
		State:       sess.State,
	}

	octx, cancel := context.WithTimeout(ctx, h.opts.OracleTimeout)
	defer cancel()

	decision, err := h.oracle.Decide(octx, dc)
	if err != nil {
		return false, fmt.Errorf("synthesize task for session %s: %w", sess.ID, err)
	}

	// Record the tick even when the oracle declines to produce a task, so
	// the idempotence guard holds for the rest of the window.
	sess.LastMainTick = time.Now()
	sess.LastTickHistoryLen = len(sess.History)

	if decision.State != nil {
		sess.State = decision.State
	}
	if decision.Task == "" {
		return false, nil
	}

	sess.PushTask(plan.Task{
		ID:          uuid.NewString(),
		Description: decision.Task,
		Reasoning:   decision.TaskReasoning,
		CreatedAt:   time.Now(),
	})
	h.logger.Debug("task enqueued",
		zap.String("session", sess.ID),
		zap.String("task", decision.Task))
	return true, nil
}
