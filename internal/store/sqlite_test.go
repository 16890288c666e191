package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pulse/internal/plan"
	"pulse/internal/session"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteLazyCreate(t *testing.T) {
	s := openTestStore(t)
	sess, err := s.Load(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.ID != "fresh" || len(sess.History) != 0 {
		t.Errorf("session = %+v", sess)
	}
}

func TestSQLiteHistoryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, fn := range []string{"reply", "post_tweet"} {
		rec := plan.StepRecord{
			Step: plan.ActionStep{
				ID:       string(rune('a' + i)),
				Type:     plan.ActionCallFunction,
				Function: fn,
				Args:     map[string]any{"text": "hi"},
				Platform: "twitter",
			},
			Feedback: plan.Feedback{ActionID: string(rune('a' + i)), Status: plan.StatusSuccess, Message: "done"},
			At:       time.Now(),
		}
		if err := s.Append(ctx, "s1", rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	sess, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sess.History) != 2 {
		t.Fatalf("history len = %d", len(sess.History))
	}
	if sess.History[0].Step.Function != "reply" || sess.History[1].Step.Function != "post_tweet" {
		t.Errorf("history order = %s, %s", sess.History[0].Step.Function, sess.History[1].Step.Function)
	}
	if diff := cmp.Diff(map[string]any{"text": "hi"}, sess.History[0].Step.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetCounter(ctx, "s1", "replyCount", 1); err != nil {
		t.Fatalf("SetCounter: %v", err)
	}
	if err := s.SetCounter(ctx, "s1", "replyCount", 2); err != nil {
		t.Fatalf("SetCounter upsert: %v", err)
	}
	got, err := s.Counter(ctx, "s1", "replyCount")
	if err != nil || got != 2 {
		t.Fatalf("Counter = %d, %v", got, err)
	}
	if got, _ := s.Counter(ctx, "s1", "missing"); got != 0 {
		t.Errorf("missing counter = %d", got)
	}
}

func TestSQLiteSaveStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, _ := s.Load(ctx, "s1")
	sess.Platform = "telegram"
	sess.Location = "desk"
	sess.State = &plan.State{HLP: &plan.HighLevelPlan{PlanID: "p1", Plan: []string{"a", "b"}}}
	sess.Tasks = []plan.Task{{ID: "t1", Description: "drain me", CreatedAt: time.Now()}}
	sess.LastMainTick = time.Now()
	sess.LastTickHistoryLen = 4
	sess.Counters = map[string]int{"steps": 4}
	if err := s.SaveState(ctx, sess); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	loaded, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Platform != "telegram" || loaded.Location != "desk" {
		t.Errorf("loaded = %+v", loaded)
	}
	if diff := cmp.Diff(sess.State, loaded.State); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if len(loaded.Tasks) != 1 || loaded.Tasks[0].ID != "t1" {
		t.Errorf("tasks = %+v", loaded.Tasks)
	}
	if loaded.LastMainTick.IsZero() || loaded.LastTickHistoryLen != 4 {
		t.Errorf("tick guard = %v / %d", loaded.LastMainTick, loaded.LastTickHistoryLen)
	}
	if loaded.Counters["steps"] != 4 {
		t.Errorf("counters = %v", loaded.Counters)
	}
}

func TestSQLiteReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Append(ctx, "s1", plan.StepRecord{Step: plan.ActionStep{ID: "a"}, At: time.Now()})
	s.SetCounter(ctx, "s1", "steps", 3)
	sess, _ := s.Load(ctx, "s1")
	sess.Tasks = []plan.Task{{ID: "t1"}}
	s.SaveState(ctx, sess)

	if err := s.Reset(ctx, "s1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	cleared, _ := s.Load(ctx, "s1")
	if len(cleared.History) != 0 || len(cleared.Tasks) != 0 || len(cleared.Counters) != 0 {
		t.Errorf("cleared = %+v", cleared)
	}
}

// Compile-time interface checks.
var (
	_ session.Store = (*SQLiteStore)(nil)
	_ session.Store = (*PostgresStore)(nil)
)
