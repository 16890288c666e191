// Package engine is the runtime facade: it owns per-session locking and
// cancellation, snapshots the agent profile per cycle, assembles the visible
// function set, and exposes the public operations the API surface and the
// heartbeat scheduler drive.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"pulse/internal/configstore"
	"pulse/internal/coordinator"
	"pulse/internal/executor"
	"pulse/internal/interp"
	"pulse/internal/logging"
	"pulse/internal/oracle"
	"pulse/internal/plan"
	"pulse/internal/planner"
	"pulse/internal/registry"
	"pulse/internal/session"
)

// Config wires the engine's collaborators. Profiles, Store, and Oracle are
// required; Locks defaults to the in-process keyed lock manager and Executor
// to the HTTP descriptor executor.
type Config struct {
	Profiles configstore.Store
	Store    session.Store
	Locks    session.Locker
	Oracle   oracle.Oracle
	Executor executor.Executor

	// Defaults is the built-in function set registered ahead of the
	// profile's own functions, e.g. the platform catalogs.
	Defaults []*registry.FunctionSpec

	// DefaultPlatform applies to sessions that have never reacted, so
	// heartbeat-driven cycles see a platform-scoped function set.
	DefaultPlatform string

	// LockPolicy applies to React calls; heartbeat ticks always try-acquire
	// and skip.
	LockPolicy session.LockPolicy

	Planner planner.Options
	Logger  *zap.Logger
}

// ReactRequest is one external reaction trigger.
type ReactRequest struct {
	SessionID string `json:"sessionId"`
	Platform  string `json:"platform"`

	// Event is the external trigger text, empty for task-driven cycles.
	Event string `json:"event,omitempty"`

	// Task overrides the profile's task description for this reaction.
	Task string `json:"task,omitempty"`

	// TweetID points the reaction at a specific tweet on the twitter
	// platform.
	TweetID string `json:"tweetId,omitempty"`
}

// Engine is the runtime facade over the planning stack.
type Engine struct {
	profiles configstore.Store
	store    session.Store
	locks    session.Locker
	oracle   oracle.Oracle
	coord    *coordinator.Coordinator
	hlp      *planner.HLP
	defaults []*registry.FunctionSpec
	platform string
	policy   session.LockPolicy
	popts    planner.Options
	logger   *zap.Logger

	mu        sync.Mutex
	cancelled map[string]bool
}

// New validates the config and builds the engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("engine: profile store is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: session store is required")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("engine: oracle is required")
	}
	if cfg.Locks == nil {
		cfg.Locks = session.NewLocks()
	}
	if cfg.Executor == nil {
		cfg.Executor = executor.NewHTTPCaller(0, cfg.Logger)
	}

	logger := logging.OrNop(cfg.Logger).Named("engine")
	return &Engine{
		profiles:  cfg.Profiles,
		store:     cfg.Store,
		locks:     cfg.Locks,
		oracle:    cfg.Oracle,
		coord:     coordinator.New(cfg.Store, cfg.Executor, cfg.Logger),
		hlp:       planner.NewHLP(cfg.Oracle, cfg.Planner, cfg.Logger),
		defaults:  cfg.Defaults,
		platform:  cfg.DefaultPlatform,
		policy:    cfg.LockPolicy,
		popts:     cfg.Planner,
		logger:    logger,
		cancelled: make(map[string]bool),
	}, nil
}

// React runs one full reaction cycle for the session. Contending callers are
// handled per the configured lock policy; the default rejects with
// ErrSessionBusy.
func (e *Engine) React(ctx context.Context, req ReactRequest) (plan.ReactionResult, error) {
	if req.SessionID == "" {
		return plan.ReactionResult{}, fmt.Errorf("react: session id is required")
	}
	if err := e.locks.Acquire(ctx, req.SessionID, e.policy); err != nil {
		return plan.ReactionResult{}, err
	}
	defer e.locks.Release(req.SessionID)

	return e.react(ctx, req)
}

// react runs the cycle with the session lock already held.
func (e *Engine) react(ctx context.Context, req ReactRequest) (plan.ReactionResult, error) {
	e.clearCancel(req.SessionID)

	cycle, err := e.beginCycle(ctx, req.SessionID)
	if err != nil {
		return plan.ReactionResult{}, err
	}

	task := req.Task
	if task == "" {
		task = cycle.taskDescription()
	}
	platform := req.Platform
	if platform == "" {
		platform = e.platform
	}

	result, err := cycle.reactor.React(ctx, planner.Input{
		Session:     cycle.sess,
		Goal:        cycle.profile.Goal,
		Description: cycle.profile.Description,
		WorldInfo:   cycle.profile.WorldInfo,
		Task:        task,
		Event:       eventText(req),
		Platform:    platform,
		Cancelled:   func() bool { return e.isCancelled(req.SessionID) },
	})
	if err != nil {
		return plan.ReactionResult{}, err
	}

	if result.Terminal == plan.TerminalCancelled {
		cycle.sess.Tasks = nil
	}
	if err := e.store.SaveState(ctx, cycle.sess); err != nil {
		return plan.ReactionResult{}, fmt.Errorf("save session %s: %w", req.SessionID, err)
	}
	return result, nil
}

// SimulateStep runs one HLP->LLP->action turn: it ensures a current task,
// synthesizing one when the queue is empty, then executes exactly one
// reaction step and returns its record.
func (e *Engine) SimulateStep(ctx context.Context, sessionID, platform string) (plan.StepRecord, error) {
	if err := e.locks.Acquire(ctx, sessionID, e.policy); err != nil {
		return plan.StepRecord{}, err
	}
	defer e.locks.Release(sessionID)
	e.clearCancel(sessionID)

	cycle, err := e.beginCycle(ctx, sessionID)
	if err != nil {
		return plan.StepRecord{}, err
	}
	if platform == "" {
		platform = e.platform
	}
	cycle.sess.Platform = platform

	if len(cycle.sess.Tasks) == 0 {
		if _, err := e.hlp.Tick(ctx, planner.TickInput{
			Session:     cycle.sess,
			Goal:        cycle.profile.Goal,
			Description: cycle.profile.Description,
			WorldInfo:   cycle.profile.WorldInfo,
			Task:        cycle.taskDescription(),
		}); err != nil {
			return plan.StepRecord{}, err
		}
	}

	task := cycle.taskDescription()
	if queued, ok := cycle.sess.PopTask(); ok {
		task = queued.Description
	}

	step, err := cycle.reactor.Step(ctx, planner.Input{
		Session:     cycle.sess,
		Goal:        cycle.profile.Goal,
		Description: cycle.profile.Description,
		WorldInfo:   cycle.profile.WorldInfo,
		Task:        task,
		Platform:    platform,
		Cancelled:   func() bool { return e.isCancelled(sessionID) },
	})
	if err != nil {
		return plan.StepRecord{}, err
	}
	if err := e.store.SaveState(ctx, cycle.sess); err != nil {
		return plan.StepRecord{}, fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return step, nil
}

// TickMainHeartbeat runs one high-level-planner tick. A busy session is a
// skip, never an error.
func (e *Engine) TickMainHeartbeat(ctx context.Context, sessionID string) error {
	if !e.locks.TryAcquire(sessionID) {
		e.logger.Debug("main tick skipped, session busy", zap.String("session", sessionID))
		return nil
	}
	defer e.locks.Release(sessionID)

	cycle, err := e.beginCycle(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := e.hlp.Tick(ctx, planner.TickInput{
		Session:     cycle.sess,
		Goal:        cycle.profile.Goal,
		Description: cycle.profile.Description,
		WorldInfo:   cycle.profile.WorldInfo,
		Task:        cycle.taskDescription(),
	}); err != nil {
		return err
	}
	return e.store.SaveState(ctx, cycle.sess)
}

// TickReactionHeartbeat drains the head of the task queue through a full
// reaction. A busy session or an empty queue is a skip.
func (e *Engine) TickReactionHeartbeat(ctx context.Context, sessionID string) error {
	if !e.locks.TryAcquire(sessionID) {
		e.logger.Debug("reaction tick skipped, session busy", zap.String("session", sessionID))
		return nil
	}
	defer e.locks.Release(sessionID)
	e.clearCancel(sessionID)

	cycle, err := e.beginCycle(ctx, sessionID)
	if err != nil {
		return err
	}
	task, ok := cycle.sess.PopTask()
	if !ok {
		return nil
	}

	result, err := cycle.reactor.React(ctx, planner.Input{
		Session:     cycle.sess,
		Goal:        cycle.profile.Goal,
		Description: cycle.profile.Description,
		WorldInfo:   cycle.profile.WorldInfo,
		Task:        task.Description,
		Platform:    cycle.sess.Platform,
		Cancelled:   func() bool { return e.isCancelled(sessionID) },
	})
	if err != nil {
		return err
	}
	if result.Terminal == plan.TerminalCancelled {
		cycle.sess.Tasks = nil
	}
	return e.store.SaveState(ctx, cycle.sess)
}

// CancelSession marks the session; an in-flight reaction observes the mark
// between steps and winds down after the current step. The mark resets when
// the next cycle begins.
func (e *Engine) CancelSession(sessionID string) {
	e.mu.Lock()
	e.cancelled[sessionID] = true
	e.mu.Unlock()
	e.logger.Info("session cancelled", zap.String("session", sessionID))
}

// ResetSession clears the session's history, counters, queue, and planner
// state.
func (e *Engine) ResetSession(ctx context.Context, sessionID string) error {
	if err := e.locks.Acquire(ctx, sessionID, e.policy); err != nil {
		return err
	}
	defer e.locks.Release(sessionID)
	e.clearCancel(sessionID)
	return e.store.Reset(ctx, sessionID)
}

// Functions lists the currently deployable function set: the built-in
// defaults plus the profile's own functions.
func (e *Engine) Functions(ctx context.Context) ([]registry.FunctionSummary, error) {
	profile, err := e.profiles.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot profile: %w", err)
	}
	reg, err := e.buildRegistry(&profile)
	if err != nil {
		return nil, err
	}
	return reg.Summaries(), nil
}

// cycle bundles the per-invocation snapshot: the profile, the session, and
// the reactor assembled over the visible function set.
type cycle struct {
	profile configstore.AgentProfile
	sess    *session.Session
	reactor *planner.Reactor
}

// taskDescription substitutes session counters into the profile's task
// template, so e.g. "Total replies: {{replyCount}}" tracks execution. A
// counter with no recorded executions yet reads 0, not the raw placeholder.
func (c *cycle) taskDescription() string {
	values := c.sess.CounterValues()
	for _, name := range interp.Placeholders(c.profile.TaskDescription) {
		if _, ok := values[name]; !ok {
			values[name] = 0
		}
	}
	return interp.Render(c.profile.TaskDescription, values)
}

// beginCycle snapshots the profile, loads the session, and assembles the
// reactor over the cycle's function set.
func (e *Engine) beginCycle(ctx context.Context, sessionID string) (*cycle, error) {
	profile, err := e.profiles.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot profile: %w", err)
	}
	sess, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess.Platform == "" {
		sess.Platform = e.platform
	}
	reg, err := e.buildRegistry(&profile)
	if err != nil {
		return nil, err
	}

	reactor := planner.NewReactor(reg, e.coord, e.oracle, e.popts, e.logger)
	if len(profile.Workers) > 0 {
		reactor.WorkerLookup = profile.Worker
	}
	return &cycle{profile: profile, sess: sess, reactor: reactor}, nil
}

// buildRegistry assembles the cycle's function registry: defaults first,
// then the profile's functions. Enabling a built-in by name re-supplies its
// spec through the profile, so a default shadowed by a profile function is
// skipped rather than colliding; collisions among the remainder fail fast.
func (e *Engine) buildRegistry(profile *configstore.AgentProfile) (*registry.Registry, error) {
	reg := registry.New()
	for _, spec := range e.defaults {
		if shadowedByProfile(profile, spec) {
			continue
		}
		if err := reg.Register(spec); err != nil {
			return nil, fmt.Errorf("register default function %s: %w", spec.Name, err)
		}
	}
	for _, spec := range profile.Functions {
		if err := reg.Register(spec); err != nil {
			return nil, fmt.Errorf("register profile function %s: %w", spec.Name, err)
		}
	}
	return reg, nil
}

// shadowedByProfile reports whether a profile function already occupies the
// default spec's visibility scope: same name under the same tag, or either
// side global.
func shadowedByProfile(profile *configstore.AgentProfile, def *registry.FunctionSpec) bool {
	for _, fn := range profile.Functions {
		if fn.Name != def.Name {
			continue
		}
		fp, dp := normalTag(fn.Platform), normalTag(def.Platform)
		if fp == dp || fp == "" || dp == "" {
			return true
		}
	}
	return false
}

func normalTag(platform string) string {
	if platform == "*" {
		return ""
	}
	return platform
}

func (e *Engine) isCancelled(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[sessionID]
}

func (e *Engine) clearCancel(sessionID string) {
	e.mu.Lock()
	delete(e.cancelled, sessionID)
	e.mu.Unlock()
}

// eventText folds the optional tweet pointer into the event context the
// oracle sees.
func eventText(req ReactRequest) string {
	if req.TweetID == "" {
		return req.Event
	}
	if req.Event == "" {
		return fmt.Sprintf("Tweet ID: %s", req.TweetID)
	}
	return strings.TrimSpace(req.Event) + fmt.Sprintf(" (Tweet ID: %s)", req.TweetID)
}
