package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pulse/internal/coordinator"
	"pulse/internal/executor"
	"pulse/internal/oracle"
	"pulse/internal/plan"
	"pulse/internal/registry"
	"pulse/internal/session"
)

func newHarness(t *testing.T, orc oracle.Oracle, opts Options) (*Reactor, *session.MemoryStore, *registry.Registry, *executor.Local) {
	t.Helper()
	store := session.NewMemoryStore()
	reg := registry.New()
	local := executor.NewLocal(nil)
	coord := coordinator.New(store, local, nil)
	return NewReactor(reg, coord, orc, opts, nil), store, reg, local
}

func loadSession(t *testing.T, store *session.MemoryStore, id string) *session.Session {
	t.Helper()
	sess, err := store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return sess
}

func okHandler(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
	return "ok", nil, nil
}

func TestEmptyVisibleSetYieldsSingleWait(t *testing.T) {
	orc := oracle.NewScripted(plan.Decision{Type: plan.ActionCallFunction, Function: "anything"})
	reactor, store, _, _ := newHarness(t, orc, Options{})

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalCompleted {
		t.Errorf("terminal = %s", result.Terminal)
	}
	if len(result.Steps) != 1 || result.Steps[0].Step.Type != plan.ActionWait {
		t.Fatalf("steps = %+v", result.Steps)
	}
	if len(orc.Calls()) != 0 {
		t.Error("oracle must not be consulted without visible functions")
	}
}

func TestReactionSequencesUntilDone(t *testing.T) {
	orc := oracle.NewScripted(
		plan.Decision{Type: plan.ActionCallFunction, Function: "reply", Args: map[string]any{"text": "hi"}},
		plan.Decision{Type: plan.ActionDone, Reasoning: "replied"},
	)
	reactor, store, reg, local := newHarness(t, orc, Options{})
	reg.MustRegister(&registry.FunctionSpec{
		Name:     "reply",
		Platform: "twitter",
		Args:     []registry.Argument{{Name: "text", Type: registry.ArgString}},
	})
	local.Handle("reply", okHandler)

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter", Event: "someone said hello"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalCompleted {
		t.Errorf("terminal = %s", result.Terminal)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("steps = %d", len(result.Steps))
	}
	if result.Steps[0].Step.Function != "reply" || result.Steps[0].Feedback.Status != plan.StatusSuccess {
		t.Errorf("first step = %+v", result.Steps[0])
	}
	if result.Steps[1].Step.Type != plan.ActionDone {
		t.Errorf("second step = %+v", result.Steps[1])
	}
	if sess.Counter("replyCount") != 1 {
		t.Errorf("replyCount = %d", sess.Counter("replyCount"))
	}
}

func TestStepBudgetGuard(t *testing.T) {
	// An oracle that never terminates.
	orc := oracle.NewScripted()
	orc.Fallback = plan.Decision{Type: plan.ActionCallFunction, Function: "ping"}

	reactor, store, reg, local := newHarness(t, orc, Options{MaxSteps: 5})
	reg.MustRegister(&registry.FunctionSpec{Name: "ping", Platform: "twitter"})
	local.Handle("ping", okHandler)

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalBudgetExceeded {
		t.Errorf("terminal = %s", result.Terminal)
	}
	if !errors.Is(result.Err, ErrStepBudgetExceeded) {
		t.Errorf("result err = %v", result.Err)
	}
	if len(result.Steps) != 5 {
		t.Errorf("steps = %d, want exactly 5", len(result.Steps))
	}
}

func TestInvalidPlanDecisionRecordedAndLoopContinues(t *testing.T) {
	orc := oracle.NewScripted(
		plan.Decision{Type: plan.ActionCallFunction, Function: "not_registered"},
		plan.Decision{Type: plan.ActionDone},
	)
	reactor, store, reg, _ := newHarness(t, orc, Options{})
	reg.MustRegister(&registry.FunctionSpec{Name: "ping", Platform: "twitter"})

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalCompleted {
		t.Errorf("terminal = %s", result.Terminal)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("steps = %d", len(result.Steps))
	}
	bad := result.Steps[0]
	if bad.Feedback.Status != plan.StatusError || !strings.Contains(bad.Feedback.Message, ErrInvalidPlanDecision.Error()) {
		t.Errorf("invalid decision step = %+v", bad)
	}
}

func TestBindingErrorRecorded(t *testing.T) {
	orc := oracle.NewScripted(
		plan.Decision{Type: plan.ActionCallFunction, Function: "reply", Args: map[string]any{"text": 5}},
		plan.Decision{Type: plan.ActionWait},
	)
	reactor, store, reg, _ := newHarness(t, orc, Options{})
	reg.MustRegister(&registry.FunctionSpec{
		Name:     "reply",
		Platform: "twitter",
		Args:     []registry.Argument{{Name: "text", Type: registry.ArgString}},
	})

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("steps = %d", len(result.Steps))
	}
	if result.Steps[0].Feedback.Status != plan.StatusError ||
		!strings.Contains(result.Steps[0].Feedback.Message, "argument binding") {
		t.Errorf("binding step = %+v", result.Steps[0])
	}
}

func TestFunctionFailureContinuesLoop(t *testing.T) {
	orc := oracle.NewScripted(
		plan.Decision{Type: plan.ActionCallFunction, Function: "flaky"},
		plan.Decision{Type: plan.ActionCallFunction, Function: "flaky"},
		plan.Decision{Type: plan.ActionDone},
	)
	reactor, store, reg, local := newHarness(t, orc, Options{})
	reg.MustRegister(&registry.FunctionSpec{Name: "flaky", Platform: "twitter", ErrorFeedback: "flaky said: {{error}}"})

	calls := 0
	local.Handle("flaky", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		calls++
		if calls == 1 {
			return "", nil, errors.New("rate limited")
		}
		return "recovered", nil, nil
	})

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("steps = %d", len(result.Steps))
	}
	if result.Steps[0].Feedback.Status != plan.StatusError || result.Steps[0].Feedback.Message != "flaky said: rate limited" {
		t.Errorf("failure step = %+v", result.Steps[0].Feedback)
	}
	if result.Steps[1].Feedback.Status != plan.StatusSuccess {
		t.Errorf("recovery step = %+v", result.Steps[1].Feedback)
	}
}

func TestOracleFailureLimitTerminates(t *testing.T) {
	orc := oracle.NewScripted()
	orc.PushErr(oracle.ErrOracleUnavailable)
	orc.PushErr(oracle.ErrOracleUnavailable)
	orc.PushErr(oracle.ErrOracleUnavailable)

	reactor, store, reg, _ := newHarness(t, orc, Options{OracleFailureLimit: 3})
	reg.MustRegister(&registry.FunctionSpec{Name: "ping", Platform: "twitter"})

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalOracleFailed {
		t.Errorf("terminal = %s", result.Terminal)
	}
	if !errors.Is(result.Err, ErrOracleFailed) {
		t.Errorf("result err = %v", result.Err)
	}
	if len(result.Steps) != 3 {
		t.Errorf("steps = %d, want one error record per failure", len(result.Steps))
	}
}

func TestTransientOracleFailureRecovers(t *testing.T) {
	orc := oracle.NewScripted()
	orc.PushErr(oracle.ErrOracleUnavailable)
	orc.Push(plan.Decision{Type: plan.ActionDone})

	reactor, store, reg, _ := newHarness(t, orc, Options{OracleFailureLimit: 3})
	reg.MustRegister(&registry.FunctionSpec{Name: "ping", Platform: "twitter"})

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalCompleted {
		t.Errorf("terminal = %s", result.Terminal)
	}
	if len(result.Steps) != 2 {
		t.Errorf("steps = %d", len(result.Steps))
	}
}

func TestGoToSwitchesLocationAndNarrowsActionSpace(t *testing.T) {
	orc := oracle.NewScripted(
		plan.Decision{Type: plan.ActionGoTo, Location: "desk"},
		plan.Decision{Type: plan.ActionDone},
	)
	reactor, store, reg, _ := newHarness(t, orc, Options{})
	reg.MustRegister(&registry.FunctionSpec{Name: "ping", Platform: "twitter"})
	reg.MustRegister(&registry.FunctionSpec{Name: "stamp", Platform: "twitter"})

	desk := &registry.Worker{Name: "desk", ActionSpace: []string{"stamp"}}
	reactor.WorkerLookup = func(name string) *registry.Worker {
		if name == "desk" {
			return desk
		}
		return nil
	}

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if sess.Location != "desk" {
		t.Errorf("location = %q", sess.Location)
	}
	if result.Steps[0].Step.Type != plan.ActionGoTo || result.Steps[0].Feedback.Status != plan.StatusSuccess {
		t.Errorf("go_to step = %+v", result.Steps[0])
	}

	// The next decision only saw the desk's action space.
	calls := orc.Calls()
	last := calls[len(calls)-1]
	if len(last.Functions) != 1 || last.Functions[0].Name != "stamp" {
		t.Errorf("narrowed functions = %+v", last.Functions)
	}
}

func TestGoToUnknownLocationIsInvalidDecision(t *testing.T) {
	orc := oracle.NewScripted(
		plan.Decision{Type: plan.ActionGoTo, Location: "void"},
		plan.Decision{Type: plan.ActionDone},
	)
	reactor, store, reg, _ := newHarness(t, orc, Options{})
	reg.MustRegister(&registry.FunctionSpec{Name: "ping", Platform: "twitter"})

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Steps[0].Feedback.Status != plan.StatusError {
		t.Errorf("go_to step = %+v", result.Steps[0])
	}
	if sess.Location != "" {
		t.Errorf("location = %q", sess.Location)
	}
}

func TestCancellationBetweenSteps(t *testing.T) {
	cancelled := false
	orc := oracle.NewScripted()
	orc.Fallback = plan.Decision{Type: plan.ActionCallFunction, Function: "ping"}

	reactor, store, reg, local := newHarness(t, orc, Options{MaxSteps: 100})
	reg.MustRegister(&registry.FunctionSpec{Name: "ping", Platform: "twitter"})
	steps := 0
	local.Handle("ping", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		steps++
		if steps == 2 {
			cancelled = true
		}
		return "ok", nil, nil
	})

	sess := loadSession(t, store, "s1")
	result, err := reactor.React(context.Background(), Input{
		Session:   sess,
		Platform:  "twitter",
		Cancelled: func() bool { return cancelled },
	})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalCancelled {
		t.Errorf("terminal = %s", result.Terminal)
	}
	if len(result.Steps) != 2 {
		t.Errorf("steps = %d, want the in-flight step to finish", len(result.Steps))
	}
}

func TestDecisionStatePersistedOnSession(t *testing.T) {
	state := &plan.State{
		HLP: &plan.HighLevelPlan{PlanID: "p1", Plan: []string{"observe", "act"}},
	}
	orc := oracle.NewScripted(plan.Decision{Type: plan.ActionWait, State: state})

	reactor, store, reg, _ := newHarness(t, orc, Options{})
	reg.MustRegister(&registry.FunctionSpec{Name: "ping", Platform: "twitter"})

	sess := loadSession(t, store, "s1")
	if _, err := reactor.React(context.Background(), Input{Session: sess, Platform: "twitter"}); err != nil {
		t.Fatalf("React: %v", err)
	}
	if sess.State == nil || sess.State.HLP.PlanID != "p1" {
		t.Errorf("state = %+v", sess.State)
	}
}

func TestHLPTickEnqueuesOnce(t *testing.T) {
	orc := oracle.NewScripted(
		plan.Decision{Task: "post a morning tweet", TaskReasoning: "audience is awake"},
		plan.Decision{Task: "should not appear"},
	)
	hlp := NewHLP(orc, Options{}, nil)
	store := session.NewMemoryStore()
	sess := loadSession(t, store, "s1")

	in := TickInput{Session: sess, Goal: "grow the account"}
	enqueued, err := hlp.Tick(context.Background(), in)
	if err != nil || !enqueued {
		t.Fatalf("first tick = %t, %v", enqueued, err)
	}
	if len(sess.Tasks) != 1 || sess.Tasks[0].Description != "post a morning tweet" {
		t.Fatalf("tasks = %+v", sess.Tasks)
	}

	// Second tick in the same window: queue is non-empty, nothing happens.
	enqueued, err = hlp.Tick(context.Background(), in)
	if err != nil || enqueued {
		t.Fatalf("second tick = %t, %v", enqueued, err)
	}
	if len(sess.Tasks) != 1 {
		t.Errorf("tasks = %d, duplicate enqueued", len(sess.Tasks))
	}
}

func TestHLPTickIdempotentWithoutNewHistory(t *testing.T) {
	orc := oracle.NewScripted(
		plan.Decision{Task: "first"},
		plan.Decision{Task: "second"},
	)
	hlp := NewHLP(orc, Options{}, nil)
	store := session.NewMemoryStore()
	sess := loadSession(t, store, "s1")

	in := TickInput{Session: sess, Goal: "g"}
	if _, err := hlp.Tick(context.Background(), in); err != nil {
		t.Fatalf("tick: %v", err)
	}
	sess.PopTask()

	// Queue drained but no new history: still guarded.
	enqueued, err := hlp.Tick(context.Background(), in)
	if err != nil || enqueued {
		t.Fatalf("guarded tick = %t, %v", enqueued, err)
	}

	// New history unlocks the next synthesis.
	sess.History = append(sess.History, plan.StepRecord{At: time.Now()})
	enqueued, err = hlp.Tick(context.Background(), in)
	if err != nil || !enqueued {
		t.Fatalf("post-history tick = %t, %v", enqueued, err)
	}
	if sess.Tasks[0].Description != "second" {
		t.Errorf("task = %+v", sess.Tasks[0])
	}
}
