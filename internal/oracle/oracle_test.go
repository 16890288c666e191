package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulse/internal/plan"
)

func TestScriptedSequence(t *testing.T) {
	orc := NewScripted(
		plan.Decision{Type: plan.ActionCallFunction, Function: "post_tweet"},
		plan.Decision{Type: plan.ActionDone},
	)
	ctx := context.Background()

	first, err := orc.Decide(ctx, DecisionContext{Mode: ModeReaction})
	if err != nil || first.Function != "post_tweet" {
		t.Fatalf("first = %+v, %v", first, err)
	}
	second, err := orc.Decide(ctx, DecisionContext{Mode: ModeReaction})
	if err != nil || second.Type != plan.ActionDone {
		t.Fatalf("second = %+v, %v", second, err)
	}

	// Exhausted script falls back to wait.
	third, err := orc.Decide(ctx, DecisionContext{Mode: ModeReaction})
	if err != nil || third.Type != plan.ActionWait {
		t.Fatalf("third = %+v, %v", third, err)
	}
	if len(orc.Calls()) != 3 {
		t.Errorf("calls = %d", len(orc.Calls()))
	}
}

func TestScriptedErrInterleaving(t *testing.T) {
	orc := NewScripted()
	orc.Push(plan.Decision{Type: plan.ActionCallFunction, Function: "a"})
	orc.PushErr(ErrOracleUnavailable)
	orc.Push(plan.Decision{Type: plan.ActionDone})
	ctx := context.Background()

	if d, err := orc.Decide(ctx, DecisionContext{}); err != nil || d.Function != "a" {
		t.Fatalf("step 1 = %+v, %v", d, err)
	}
	if _, err := orc.Decide(ctx, DecisionContext{}); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("step 2 err = %v", err)
	}
	if d, err := orc.Decide(ctx, DecisionContext{}); err != nil || d.Type != plan.ActionDone {
		t.Fatalf("step 3 = %+v, %v", d, err)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    plan.ActionType
		wantErr bool
	}{
		{"plain", `{"type":"call_function","function":"reply","args":{"text":"hi"}}`, plan.ActionCallFunction, false},
		{"fenced", "```json\n{\"type\":\"wait\"}\n```", plan.ActionWait, false},
		{"bad type", `{"type":"explode"}`, "", true},
		{"not json", `the agent should wait`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecision: %v", err)
			}
			if got.Type != tt.want {
				t.Errorf("type = %q, want %q", got.Type, tt.want)
			}
		})
	}
}

func TestParseDecisionTaskSynthesis(t *testing.T) {
	got, err := ParseDecision(`{"task":"engage with mentions","task_reasoning":"goal progress"}`)
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if got.Task != "engage with mentions" {
		t.Errorf("task = %q", got.Task)
	}
}

func TestChatCompletionsDecide(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content": `{"type":"call_function","function":"post_tweet","args":{"text":"gm"}}`,
				}},
			},
		})
	}))
	defer srv.Close()

	orc := NewChatCompletions(ChatConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		ModelID: "llama_3_1_405b",
	}, nil)

	decision, err := orc.Decide(context.Background(), DecisionContext{
		Mode: ModeReaction,
		Goal: "grow the account",
		Task: "reply to mentions",
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Function != "post_tweet" {
		t.Errorf("function = %q", decision.Function)
	}
	if gotReq.Model != "meta-llama/Meta-Llama-3.1-405B-Instruct-Turbo" {
		t.Errorf("served model = %q", gotReq.Model)
	}
}

func TestChatCompletionsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	orc := NewChatCompletions(ChatConfig{BaseURL: srv.URL, Retries: 2}, nil)
	_, err := orc.Decide(context.Background(), DecisionContext{Mode: ModeReaction})
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("err = %v, want ErrOracleUnavailable", err)
	}
}
