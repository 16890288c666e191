package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"pulse/internal/logging"
	"pulse/internal/plan"
)

// servedModels maps the profile's model-id enum to the model names the
// OpenAI-compatible endpoint serves.
var servedModels = map[string]string{
	"llama_3_1_405b":         "meta-llama/Meta-Llama-3.1-405B-Instruct-Turbo",
	"deepseek_r1":            "deepseek-ai/DeepSeek-R1",
	"llama_3_3_70b_instruct": "meta-llama/Llama-3.3-70B-Instruct-Turbo",
	"qwen2p5_72b_instruct":   "Qwen/Qwen2.5-72B-Instruct-Turbo",
	"deepseek_v3":            "deepseek-ai/DeepSeek-V3",
}

// ChatConfig holds the chat-completions adapter settings.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	// ModelID is the profile enum value; it is translated to the served
	// model name. Unknown ids pass through verbatim.
	ModelID string
	Timeout time.Duration
	// Retries is the number of attempts per decision; transient HTTP
	// failures back off between attempts.
	Retries int
}

// ChatCompletions asks an OpenAI-compatible chat endpoint for decisions.
// Every failure mode maps to ErrOracleUnavailable so the reaction loop can
// treat the adapter as a transient collaborator.
type ChatCompletions struct {
	apiKey     string
	baseURL    string
	model      string
	retries    int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewChatCompletions creates the adapter. Zero-value config fields get
// conservative defaults (60s timeout, 3 attempts).
func NewChatCompletions(cfg ChatConfig, logger *zap.Logger) *ChatCompletions {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	model := cfg.ModelID
	if served, ok := servedModels[cfg.ModelID]; ok {
		model = served
	}
	return &ChatCompletions{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   model,
		retries: cfg.Retries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logging.OrNop(logger).Named("oracle"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	ResponseFmt *responseFmt  `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Decide builds the decision prompt, calls the endpoint with retries, and
// parses the JSON decision out of the first choice.
func (c *ChatCompletions) Decide(ctx context.Context, dc DecisionContext) (plan.Decision, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(dc)},
			{Role: "user", Content: userPrompt(dc)},
		},
		Temperature: 1.0,
		ResponseFmt: &responseFmt{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return plan.Decision{}, fmt.Errorf("%w: marshal request: %v", ErrOracleUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return plan.Decision{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		decision, err := c.once(ctx, payload)
		if err == nil {
			return decision, nil
		}
		if ctx.Err() != nil {
			return plan.Decision{}, ctx.Err()
		}
		lastErr = err
		c.logger.Debug("oracle attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return plan.Decision{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, lastErr)
}

func (c *ChatCompletions) once(ctx context.Context, payload []byte) (plan.Decision, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return plan.Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return plan.Decision{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return plan.Decision{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return plan.Decision{}, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return plan.Decision{}, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return plan.Decision{}, fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return plan.Decision{}, fmt.Errorf("no choices in response")
	}

	return ParseDecision(parsed.Choices[0].Message.Content)
}

// ParseDecision decodes a decision from model output, tolerating markdown
// code fences around the JSON body.
func ParseDecision(content string) (plan.Decision, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	var decision plan.Decision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return plan.Decision{}, fmt.Errorf("parse decision: %w", err)
	}
	if decision.Type == "" && decision.Task != "" {
		// Task-synthesis responses carry no action type.
		return decision, nil
	}
	if !decision.Type.Valid() {
		return plan.Decision{}, fmt.Errorf("parse decision: unknown action type %q", decision.Type)
	}
	return decision, nil
}

func systemPrompt(dc DecisionContext) string {
	var b strings.Builder
	b.WriteString("You are the planning engine for an autonomous agent.\n")
	b.WriteString("Goal: " + dc.Goal + "\n")
	if dc.Description != "" {
		b.WriteString("Character: " + dc.Description + "\n")
	}
	if dc.WorldInfo != "" {
		b.WriteString("World: " + dc.WorldInfo + "\n")
	}
	if dc.Mode == ModeTask {
		b.WriteString("Respond with a JSON object {\"task\": string, \"task_reasoning\": string} describing the next task toward the goal.\n")
		return b.String()
	}
	b.WriteString("Respond with a JSON object {\"type\": one of call_function|continue_function|wait|go_to|done, " +
		"\"function\": string, \"args\": object, \"location\": string, \"reasoning\": string}. " +
		"Only name functions from the list given; use wait when nothing applies.\n")
	return b.String()
}

func userPrompt(dc DecisionContext) string {
	type fnDef struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Args        any    `json:"args,omitempty"`
		Hint        string `json:"hint,omitempty"`
	}
	fns := make([]fnDef, 0, len(dc.Functions))
	for _, f := range dc.Functions {
		fns = append(fns, fnDef{Name: f.Name, Description: f.Description, Args: f.Args, Hint: f.Hint})
	}

	ctx := map[string]any{
		"task":      dc.Task,
		"functions": fns,
	}
	if dc.Event != "" {
		ctx["event"] = dc.Event
	}
	if len(dc.History) > 0 {
		ctx["history"] = dc.History
	}
	if len(dc.Counters) > 0 {
		ctx["counters"] = dc.Counters
	}
	if dc.State != nil {
		ctx["state"] = dc.State
	}
	if dc.Location != "" {
		ctx["location"] = dc.Location
	}

	encoded, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return dc.Task
	}
	return string(encoded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
