package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"pulse/internal/interp"
	"pulse/internal/logging"
	"pulse/internal/registry"
)

// HTTPCaller executes FunctionSpec HTTP descriptors: interpolates the URL,
// headers, and payload from bound arguments, performs the request, and
// decodes the JSON body as the result payload. Non-2xx responses are
// ordinary failures; only transport-level breakage surfaces as an error.
type HTTPCaller struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPCaller creates the descriptor executor. A zero timeout defaults
// to 30 seconds; per-step deadlines still apply through ctx.
func NewHTTPCaller(timeout time.Duration, logger *zap.Logger) *HTTPCaller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCaller{
		client: &http.Client{Timeout: timeout},
		logger: logging.OrNop(logger).Named("httpexec"),
	}
}

func (h *HTTPCaller) Invoke(ctx context.Context, spec *registry.FunctionSpec, args map[string]any) (Result, error) {
	call := spec.HTTP
	if call == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNoExecution, spec.Name)
	}

	url := interp.Render(call.URL, args)
	if query := renderQuery(call.Query, args); query != "" {
		url += "?" + query
	}
	body, err := renderPayload(call.Payload, args)
	if err != nil {
		return Result{}, fmt.Errorf("render payload for %s: %w", spec.Name, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(call.Method), url, reader)
	if err != nil {
		return Result{}, fmt.Errorf("build request for %s: %w", spec.Name, err)
	}
	for key, value := range call.Headers {
		req.Header.Set(key, interp.Render(value, args))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		// Timeouts and refused connections are narratable failures the
		// planner should hear about, not invocation defects.
		h.logger.Debug("request failed", zap.String("function", spec.Name), zap.Error(err))
		return Result{Status: StatusFailed, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: StatusFailed, Message: err.Error()}, nil
	}

	payload := decodeBody(raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := fmt.Sprintf("%s returned status %d", spec.Name, resp.StatusCode)
		return Result{Status: StatusFailed, Message: message, Payload: payload}, nil
	}
	return Result{Status: StatusDone, Payload: payload}, nil
}

// renderQuery interpolates the descriptor's query parameters and encodes
// them. Parameters whose placeholders did not resolve are dropped.
func renderQuery(template map[string]string, args map[string]any) string {
	if len(template) == 0 {
		return ""
	}
	values := neturl.Values{}
	for key, value := range template {
		rendered := interp.Render(value, args)
		if strings.Contains(rendered, "{{") {
			continue
		}
		values.Set(key, rendered)
	}
	return values.Encode()
}

// renderPayload interpolates the descriptor's payload template. A string
// value that is exactly one placeholder binds the raw argument value, so
// arrays and objects pass through untyped; mixed strings interpolate as
// text. Nested maps and slices render recursively.
func renderPayload(template map[string]any, args map[string]any) ([]byte, error) {
	if len(template) == 0 {
		return nil, nil
	}
	payload := make(map[string]any, len(template))
	for key, value := range template {
		payload[interp.Render(key, args)] = renderValue(value, args)
	}
	return json.Marshal(payload)
}

func renderValue(value any, args map[string]any) any {
	switch v := value.(type) {
	case string:
		if raw, ok := bindWhole(v, args); ok {
			return raw
		}
		return interp.Render(v, args)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[interp.Render(key, args)] = renderValue(val, args)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = renderValue(val, args)
		}
		return out
	default:
		return v
	}
}

// bindWhole reports whether the template string is a single placeholder
// that resolves in the bag, returning the raw value.
func bindWhole(template string, args map[string]any) (any, bool) {
	trimmed := strings.TrimSpace(template)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return nil, false
	}
	inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	if strings.ContainsAny(inner, "{}") {
		return nil, false
	}
	return interp.Lookup(args, inner)
}

// decodeBody turns a response body into a payload map. Non-object JSON and
// plain text are mounted under "result" so feedback templates can still
// reach them.
func decodeBody(raw []byte) map[string]any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap
	}
	var asAny any
	if err := json.Unmarshal(raw, &asAny); err == nil {
		return map[string]any{"result": asAny}
	}
	return map[string]any{"result": strings.TrimSpace(string(raw))}
}
