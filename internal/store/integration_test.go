package store

import (
	"context"
	"os"
	"testing"
	"time"

	"pulse/internal/plan"
	"pulse/internal/session"
)

// Integration tests for the external backends. They skip unless the
// corresponding service is reachable via the env var, mirroring how the
// SQLite tests run unconditionally against temp files.

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("PULSE_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("PULSE_POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer s.Close()

	id := "pg-test-" + time.Now().Format("150405.000")
	defer s.Reset(ctx, id)

	rec := plan.StepRecord{
		Step:     plan.ActionStep{ID: "a", Type: plan.ActionCallFunction, Function: "reply"},
		Feedback: plan.Feedback{ActionID: "a", Status: plan.StatusSuccess, Message: "ok"},
		At:       time.Now(),
	}
	if err := s.Append(ctx, id, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.SetCounter(ctx, id, "replyCount", 3); err != nil {
		t.Fatalf("SetCounter: %v", err)
	}

	sess, err := s.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sess.History) != 1 || sess.History[0].Step.Function != "reply" {
		t.Errorf("history = %+v", sess.History)
	}
	if sess.Counters["replyCount"] != 3 {
		t.Errorf("counters = %v", sess.Counters)
	}

	sess.Platform = "twitter"
	sess.Tasks = []plan.Task{{ID: "t1", Description: "queued"}}
	if err := s.SaveState(ctx, sess); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	loaded, err := s.Load(ctx, id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Platform != "twitter" || len(loaded.Tasks) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}

	if err := s.Reset(ctx, id); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	cleared, _ := s.Load(ctx, id)
	if len(cleared.History) != 0 || len(cleared.Counters) != 0 {
		t.Errorf("cleared = %+v", cleared)
	}
}

func TestRedisLocksExclusion(t *testing.T) {
	url := os.Getenv("PULSE_REDIS_TEST_URL")
	if url == "" {
		t.Skip("PULSE_REDIS_TEST_URL not set")
	}
	locks, err := NewRedisLocks(url)
	if err != nil {
		t.Fatalf("NewRedisLocks: %v", err)
	}
	defer locks.Close()

	ctx := context.Background()
	id := "redis-test-" + time.Now().Format("150405.000")

	if err := locks.Acquire(ctx, id, session.Reject); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := locks.Acquire(ctx, id, session.Reject); err != session.ErrSessionBusy {
		t.Errorf("second acquire = %v, want ErrSessionBusy", err)
	}
	if locks.TryAcquire(id) {
		t.Error("TryAcquire succeeded while held")
	}
	locks.Release(id)

	if !locks.TryAcquire(id) {
		t.Error("TryAcquire failed after release")
	}
	locks.Release(id)

	// Wait policy should block until the holder releases.
	if err := locks.Acquire(ctx, id, session.Reject); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- locks.Acquire(ctx, id, session.Wait)
	}()
	select {
	case err := <-done:
		t.Fatalf("wait acquire returned early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}
	locks.Release(id)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait acquire: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait acquire never completed")
	}
	locks.Release(id)
}
