package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pulse/internal/registry"
)

func TestProfileNormalizeDefaults(t *testing.T) {
	p := AgentProfile{Goal: "g"}
	if err := p.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if p.ModelID != DefaultModelID {
		t.Errorf("model = %q", p.ModelID)
	}
	if p.MainHeartbeat != DefaultMainHeartbeat || p.ReactionHeartbeat != DefaultReactionHeartbeat {
		t.Errorf("heartbeats = %v / %v", p.MainHeartbeat, p.ReactionHeartbeat)
	}
}

func TestProfileNormalizeRejectsUnknownModel(t *testing.T) {
	p := AgentProfile{ModelID: "gpt_unknown"}
	if err := p.Normalize(); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("err = %v, want ErrInvalidProfile", err)
	}
}

func TestProfileNormalizeValidatesFunctions(t *testing.T) {
	p := AgentProfile{
		Functions: []*registry.FunctionSpec{{Name: ""}},
	}
	if err := p.Normalize(); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("err = %v, want ErrInvalidProfile", err)
	}
}

func TestStaticSnapshotIsolation(t *testing.T) {
	store, err := NewStatic(AgentProfile{
		Goal:      "g",
		Functions: []*registry.FunctionSpec{{Name: "ping"}},
	})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	snap, _ := store.Snapshot(context.Background())
	snap.Functions[0].Name = "tampered"

	again, _ := store.Snapshot(context.Background())
	if again.Functions[0].Name != "ping" {
		t.Error("snapshot shares function specs with the store")
	}
}

func TestStaticUpdateAtomicity(t *testing.T) {
	store, _ := NewStatic(AgentProfile{Goal: "before"})
	ctx := context.Background()

	err := store.Update(ctx, func(p *AgentProfile) error {
		p.Goal = "after"
		return errors.New("change of heart")
	})
	if err == nil {
		t.Fatal("Update should propagate the mutation error")
	}
	snap, _ := store.Snapshot(ctx)
	if snap.Goal != "before" {
		t.Error("failed update must not apply")
	}

	if err := store.Update(ctx, func(p *AgentProfile) error {
		p.Goal = "after"
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap, _ = store.Snapshot(ctx)
	if snap.Goal != "after" {
		t.Errorf("goal = %q", snap.Goal)
	}
}

func writeProfile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestFileStoreLoad(t *testing.T) {
	path := writeProfile(t, t.TempDir(), `
goal: grow the account
description: a helpful agent
task_description: "Total replies: {{replyCount}}"
model_id: deepseek_v3
main_heartbeat: 30s
reaction_heartbeat: 10s
functions:
  - name: reply
    platform: twitter
    args:
      - name: text
        type: string
`)
	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	snap, _ := store.Snapshot(context.Background())
	if snap.Goal != "grow the account" || snap.ModelID != "deepseek_v3" {
		t.Errorf("profile = %+v", snap)
	}
	if snap.MainHeartbeat != 30*time.Second {
		t.Errorf("main heartbeat = %v", snap.MainHeartbeat)
	}
	if len(snap.Functions) != 1 || snap.Functions[0].Name != "reply" {
		t.Errorf("functions = %+v", snap.Functions)
	}
}

func TestFileStoreRejectsBadProfile(t *testing.T) {
	path := writeProfile(t, t.TempDir(), "model_id: bogus\n")
	if _, err := NewFileStore(path, nil); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("err = %v, want ErrInvalidProfile", err)
	}
}

func TestFileStoreUpdatePersists(t *testing.T) {
	path := writeProfile(t, t.TempDir(), "goal: old\n")
	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Update(context.Background(), func(p *AgentProfile) error {
		p.Goal = "new"
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap, _ := reopened.Snapshot(context.Background())
	if snap.Goal != "new" {
		t.Errorf("goal = %q", snap.Goal)
	}
}

func TestFileStoreWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "goal: first\n")
	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeProfile(t, dir, "goal: second\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, _ := store.Snapshot(ctx)
		if snap.Goal == "second" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("profile was not reloaded after the file changed")
}

func TestExportJSON(t *testing.T) {
	dir := t.TempDir()
	profile := AgentProfile{
		Goal:              "g",
		Description:       "d",
		WorldInfo:         "w",
		MainHeartbeat:     15 * time.Second,
		ReactionHeartbeat: 5 * time.Second,
		Functions: []*registry.FunctionSpec{
			{Name: "reply", Platform: "twitter"},
		},
	}
	path := filepath.Join(dir, "agent.json")
	if err := ExportJSON(path, profile); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if decoded["goal"] != "g" {
		t.Errorf("goal = %v", decoded["goal"])
	}
	state, _ := decoded["state"].(map[string]any)
	if state["mainHeartbeat"] != float64(15) {
		t.Errorf("state = %v", state)
	}
}

// MySQL round-trip coverage is env-gated; it needs a live server.
func TestMySQLStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("PULSE_MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("PULSE_MYSQL_TEST_DSN not set")
	}

	store, err := OpenMySQL(dsn, "test-agent", AgentProfile{Goal: "seeded"})
	if err != nil {
		t.Fatalf("OpenMySQL: %v", err)
	}
	ctx := context.Background()

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Goal == "" {
		t.Error("empty goal after seed")
	}

	if err := store.Update(ctx, func(p *AgentProfile) error {
		p.Goal = "updated"
		p.Functions = []*registry.FunctionSpec{{Name: "ping"}}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap, _ = store.Snapshot(ctx)
	if snap.Goal != "updated" || len(snap.Functions) != 1 {
		t.Errorf("profile = %+v", snap)
	}
}
