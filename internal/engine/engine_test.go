package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"pulse/internal/configstore"
	"pulse/internal/executor"
	"pulse/internal/oracle"
	"pulse/internal/plan"
	"pulse/internal/planner"
	"pulse/internal/registry"
	"pulse/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func replySpec() *registry.FunctionSpec {
	return &registry.FunctionSpec{
		Name:        "reply",
		Platform:    "twitter",
		Description: "Reply to the triggering message.",
		Args: []registry.Argument{
			{Name: "text", Type: registry.ArgString},
		},
		SuccessFeedback: "Replied: {{text}}",
	}
}

type testRig struct {
	engine *Engine
	orc    *oracle.Scripted
	exec   *executor.Local
	store  *session.MemoryStore
}

func newRig(t *testing.T, profile configstore.AgentProfile, policy session.LockPolicy) *testRig {
	t.Helper()
	profiles, err := configstore.NewStatic(profile)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	orc := oracle.NewScripted()
	exec := executor.NewLocal(nil)
	store := session.NewMemoryStore()
	eng, err := New(Config{
		Profiles:        profiles,
		Store:           store,
		Oracle:          orc,
		Executor:        exec,
		DefaultPlatform: "twitter",
		LockPolicy:      policy,
		Planner:         planner.Options{MaxSteps: 8},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testRig{engine: eng, orc: orc, exec: exec, store: store}
}

func replyProfile() configstore.AgentProfile {
	return configstore.AgentProfile{
		Goal:            "engage with followers",
		Description:     "a helpful agent",
		TaskDescription: "Total replies: {{replyCount}}",
		Functions:       []*registry.FunctionSpec{replySpec()},
	}
}

func callReply(text string) plan.Decision {
	return plan.Decision{
		Type:     plan.ActionCallFunction,
		Function: "reply",
		Args:     map[string]any{"text": text},
	}
}

func TestReactTaskTemplateTracksCounters(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Reject)
	rig.exec.Handle("reply", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		return "sent", nil, nil
	})
	rig.orc.Push(callReply("hello"))
	rig.orc.Push(plan.Decision{Type: plan.ActionWait})
	rig.orc.Push(plan.Decision{Type: plan.ActionWait})

	ctx := context.Background()
	result, err := rig.engine.React(ctx, ReactRequest{SessionID: "s1", Platform: "twitter", Event: "mention"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalCompleted || len(result.Steps) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if result.Steps[0].Feedback.Message != "Replied: hello" {
		t.Errorf("feedback = %q", result.Steps[0].Feedback.Message)
	}

	// The first cycle resolves the untouched counter to 0; the second to
	// the persisted count.
	if _, err := rig.engine.React(ctx, ReactRequest{SessionID: "s1", Platform: "twitter", Event: "another"}); err != nil {
		t.Fatalf("second React: %v", err)
	}
	calls := rig.orc.Calls()
	if len(calls) != 3 {
		t.Fatalf("oracle calls = %d", len(calls))
	}
	if calls[0].Task != "Total replies: 0" {
		t.Errorf("first task = %q", calls[0].Task)
	}
	if calls[2].Task != "Total replies: 1" {
		t.Errorf("task = %q", calls[2].Task)
	}
	if calls[2].Counters["replyCount"] != 1 || calls[2].Counters["steps"] != 1 {
		t.Errorf("counters = %v", calls[2].Counters)
	}
}

func TestReactRejectsConcurrentSameSession(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Reject)

	entered := make(chan struct{})
	release := make(chan struct{})
	rig.exec.Handle("reply", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		close(entered)
		<-release
		return "sent", nil, nil
	})
	rig.orc.Push(callReply("a"))
	rig.orc.Push(plan.Decision{Type: plan.ActionWait})

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rig.engine.React(ctx, ReactRequest{SessionID: "s1", Platform: "twitter"})
	}()
	<-entered

	_, err := rig.engine.React(ctx, ReactRequest{SessionID: "s1", Platform: "twitter"})
	if !errors.Is(err, session.ErrSessionBusy) {
		t.Errorf("contending React = %v, want ErrSessionBusy", err)
	}

	// A different session is not blocked.
	if _, err := rig.engine.React(ctx, ReactRequest{SessionID: "s2", Platform: "twitter"}); err != nil {
		t.Errorf("other session React: %v", err)
	}

	close(release)
	wg.Wait()
}

func TestReactWaitPolicySerializes(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Wait)

	var inFlight, maxInFlight atomic.Int64
	rig.exec.Handle("reply", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		inFlight.Add(-1)
		return "sent", nil, nil
	})
	for i := 0; i < 4; i++ {
		rig.orc.Push(callReply("x"))
		rig.orc.Push(plan.Decision{Type: plan.ActionWait})
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rig.engine.React(ctx, ReactRequest{SessionID: "s1", Platform: "twitter"}); err != nil {
				t.Errorf("React: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent executions = %d", got)
	}
	sess, _ := rig.store.Load(ctx, "s1")
	if len(sess.History) != 8 {
		t.Errorf("history = %d records", len(sess.History))
	}
}

func TestMainTickIdempotentWithoutNewHistory(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Reject)
	rig.orc.Push(plan.Decision{Task: "write a thread", TaskReasoning: "engagement"})

	ctx := context.Background()
	if err := rig.engine.TickMainHeartbeat(ctx, "s1"); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if err := rig.engine.TickMainHeartbeat(ctx, "s1"); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	sess, _ := rig.store.Load(ctx, "s1")
	if len(sess.Tasks) != 1 {
		t.Fatalf("tasks = %+v", sess.Tasks)
	}
	if sess.Tasks[0].Description != "write a thread" {
		t.Errorf("task = %q", sess.Tasks[0].Description)
	}
	if calls := rig.orc.Calls(); len(calls) != 1 || calls[0].Mode != oracle.ModeTask {
		t.Errorf("oracle calls = %+v", calls)
	}
}

func TestReactionTickDrainsQueuedTask(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Reject)
	rig.exec.Handle("reply", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		return "sent", nil, nil
	})
	rig.orc.Push(plan.Decision{Task: "answer the backlog"})
	rig.orc.Push(callReply("on it"))
	rig.orc.Push(plan.Decision{Type: plan.ActionDone})

	ctx := context.Background()
	if err := rig.engine.TickMainHeartbeat(ctx, "s1"); err != nil {
		t.Fatalf("main tick: %v", err)
	}
	if err := rig.engine.TickReactionHeartbeat(ctx, "s1"); err != nil {
		t.Fatalf("reaction tick: %v", err)
	}

	sess, _ := rig.store.Load(ctx, "s1")
	if len(sess.Tasks) != 0 {
		t.Errorf("queue not drained: %+v", sess.Tasks)
	}
	if len(sess.History) != 2 {
		t.Fatalf("history = %d records", len(sess.History))
	}
	calls := rig.orc.Calls()
	if calls[1].Task != "answer the backlog" {
		t.Errorf("reaction task = %q", calls[1].Task)
	}

	// Empty queue: the next tick is a no-op.
	if err := rig.engine.TickReactionHeartbeat(ctx, "s1"); err != nil {
		t.Fatalf("idle tick: %v", err)
	}
	sess, _ = rig.store.Load(ctx, "s1")
	if len(sess.History) != 2 {
		t.Errorf("idle tick touched history: %d records", len(sess.History))
	}
}

func TestCancelSessionStopsInFlightReaction(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Reject)
	rig.exec.Handle("reply", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		// Cancel mid-reaction on the first call only: the loop observes
		// the mark after the step completes.
		if args["text"] == "a" {
			rig.engine.CancelSession("s1")
		}
		return "sent", nil, nil
	})
	rig.orc.Push(callReply("a"))
	rig.orc.Push(callReply("b"))

	ctx := context.Background()
	result, err := rig.engine.React(ctx, ReactRequest{SessionID: "s1", Platform: "twitter"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalCancelled {
		t.Errorf("terminal = %s", result.Terminal)
	}
	if len(result.Steps) != 1 {
		t.Errorf("steps = %d", len(result.Steps))
	}

	// The mark resets on the next cycle.
	rig.orc.Push(plan.Decision{Type: plan.ActionWait})
	result, err = rig.engine.React(ctx, ReactRequest{SessionID: "s1", Platform: "twitter"})
	if err != nil {
		t.Fatalf("second React: %v", err)
	}
	if result.Terminal != plan.TerminalCompleted {
		t.Errorf("terminal after reset = %s", result.Terminal)
	}
}

func TestSimulateStepSynthesizesWhenQueueEmpty(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Reject)
	rig.exec.Handle("reply", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		return "sent", nil, nil
	})
	rig.orc.Push(plan.Decision{Task: "greet the mentions"})
	rig.orc.Push(callReply("hi there"))

	step, err := rig.engine.SimulateStep(context.Background(), "s1", "twitter")
	if err != nil {
		t.Fatalf("SimulateStep: %v", err)
	}
	if step.Step.Function != "reply" || step.Feedback.Status != plan.StatusSuccess {
		t.Errorf("step = %+v", step)
	}

	calls := rig.orc.Calls()
	if len(calls) != 2 {
		t.Fatalf("oracle calls = %d", len(calls))
	}
	if calls[0].Mode != oracle.ModeTask || calls[1].Mode != oracle.ModeReaction {
		t.Errorf("modes = %s, %s", calls[0].Mode, calls[1].Mode)
	}
	if calls[1].Task != "greet the mentions" {
		t.Errorf("simulated task = %q", calls[1].Task)
	}
}

func TestResetSessionClearsState(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Reject)
	rig.exec.Handle("reply", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		return "sent", nil, nil
	})
	rig.orc.Push(callReply("x"))
	rig.orc.Push(plan.Decision{Type: plan.ActionWait})

	ctx := context.Background()
	if _, err := rig.engine.React(ctx, ReactRequest{SessionID: "s1", Platform: "twitter"}); err != nil {
		t.Fatalf("React: %v", err)
	}
	if err := rig.engine.ResetSession(ctx, "s1"); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	sess, _ := rig.store.Load(ctx, "s1")
	if len(sess.History) != 0 || len(sess.Counters) != 0 {
		t.Errorf("session not cleared: %+v", sess)
	}
}

func TestFunctionsListsDefaultsAndProfile(t *testing.T) {
	profile := replyProfile()
	profiles, err := configstore.NewStatic(profile)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	eng, err := New(Config{
		Profiles: profiles,
		Store:    session.NewMemoryStore(),
		Oracle:   oracle.NewScripted(),
		Defaults: []*registry.FunctionSpec{
			{Name: "post_tweet", Platform: "twitter", Description: "Post a tweet."},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summaries, err := eng.Functions(context.Background())
	if err != nil {
		t.Fatalf("Functions: %v", err)
	}
	names := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		names[s.Name] = true
	}
	if !names["post_tweet"] || !names["reply"] {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestEnabledDefaultDoesNotCollideWithBuiltin(t *testing.T) {
	// Enabling a built-in folds the same spec into the profile; cycles must
	// treat the profile copy as the registration, not a duplicate.
	builtin := &registry.FunctionSpec{
		Name:        "post_tweet",
		Platform:    "twitter",
		Description: "Post a tweet.",
		Args:        []registry.Argument{{Name: "text", Type: registry.ArgString}},
	}
	profile := replyProfile()
	profile.Functions = append(profile.Functions, builtin)
	profiles, err := configstore.NewStatic(profile)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	orc := oracle.NewScripted()
	exec := executor.NewLocal(nil)
	eng, err := New(Config{
		Profiles:        profiles,
		Store:           session.NewMemoryStore(),
		Oracle:          orc,
		Executor:        exec,
		Defaults:        []*registry.FunctionSpec{builtin},
		DefaultPlatform: "twitter",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	exec.Handle("post_tweet", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		return "posted", nil, nil
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		orc.Push(plan.Decision{Type: plan.ActionCallFunction, Function: "post_tweet", Args: map[string]any{"text": "gm"}})
		orc.Push(plan.Decision{Type: plan.ActionWait})
		result, err := eng.React(ctx, ReactRequest{SessionID: "s1", Platform: "twitter"})
		if err != nil {
			t.Fatalf("React %d: %v", i+1, err)
		}
		if result.Terminal != plan.TerminalCompleted {
			t.Errorf("React %d terminal = %s", i+1, result.Terminal)
		}
	}

	summaries, err := eng.Functions(ctx)
	if err != nil {
		t.Fatalf("Functions: %v", err)
	}
	count := 0
	for _, s := range summaries {
		if s.Name == "post_tweet" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("post_tweet listed %d times", count)
	}
}

func TestReactWithoutPlatformUsesDefault(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Reject)
	rig.exec.Handle("reply", func(ctx context.Context, args, env map[string]any) (string, map[string]any, error) {
		return "sent", nil, nil
	})
	rig.orc.Push(callReply("hello"))
	rig.orc.Push(plan.Decision{Type: plan.ActionWait})

	ctx := context.Background()
	result, err := rig.engine.React(ctx, ReactRequest{SessionID: "s1"})
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if result.Terminal != plan.TerminalCompleted || len(result.Steps) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if result.Steps[0].Step.Platform != "twitter" {
		t.Errorf("step platform = %q", result.Steps[0].Step.Platform)
	}
	sess, _ := rig.store.Load(ctx, "s1")
	if sess.Platform != "twitter" {
		t.Errorf("session platform = %q", sess.Platform)
	}
}

func TestReactRequiresSessionID(t *testing.T) {
	rig := newRig(t, replyProfile(), session.Reject)
	if _, err := rig.engine.React(context.Background(), ReactRequest{Platform: "twitter"}); err == nil {
		t.Error("React without session id succeeded")
	}
}
