package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAnthropicProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewAnthropicProvider(AnthropicConfig{
		APIKey:  "test-key",
		Model:   "claude-sonnet",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}

func TestAnthropicProvider_Stream(t *testing.T) {
	var body map[string]any
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id": "msg_1", "type": "message", "role": "assistant", "content": []any{},
				"model": "claude-sonnet-4-20250514", "stop_reason": nil, "stop_sequence": nil,
				"usage": map[string]any{"input_tokens": 25, "output_tokens": 1},
			},
		})
		writeSSE(w, "content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
		for _, part := range []string{"Hallo ", "Welt"} {
			writeSSE(w, "content_block_delta", map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "text_delta", "text": part},
			})
		}
		writeSSE(w, "content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
		writeSSE(w, "message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
			"usage": map[string]any{"output_tokens": 15},
		})
		writeSSE(w, "message_stop", map[string]any{"type": "message_stop"})
	}

	p := newTestAnthropicProvider(t, handler)
	text, usage, err := Collect(p.Stream(context.Background(), Request{
		System:   "Du bist Prof. Python.",
		Messages: []Message{{Role: RoleUser, Content: "Hallo"}},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hallo Welt" {
		t.Fatalf("text = %q, want %q", text, "Hallo Welt")
	}
	if usage.InputTokens != 25 || usage.OutputTokens != 15 {
		t.Fatalf("usage = %+v, want 25 in / 15 out", usage)
	}
	if body["stream"] != true {
		t.Fatalf("expected stream=true in request body, got %v", body["stream"])
	}
	if body["max_tokens"] != float64(anthropicDefaultMaxTokens) {
		t.Fatalf("max_tokens = %v, want default", body["max_tokens"])
	}
}

func TestAnthropicProvider_RateLimit(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "rate_limit_error",
				"message": "Rate limit exceeded",
			},
		})
	}

	p := newTestAnthropicProvider(t, handler)
	_, _, err := Collect(p.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "test"}},
	}))
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got: %T (%v)", err, err)
	}
}

func TestAnthropicProvider_Unauthorized(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "authentication_error", "message": "invalid x-api-key"},
		})
	}

	p := newTestAnthropicProvider(t, handler)
	_, _, err := Collect(p.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "test"}},
	}))
	var auth *ErrAuth
	if !errors.As(err, &auth) {
		t.Fatalf("expected ErrAuth, got: %T (%v)", err, err)
	}
}

func TestAnthropicProvider_ServerError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "api_error",
				"message": "Internal server error",
			},
		})
	}

	p := newTestAnthropicProvider(t, handler)
	_, _, err := Collect(p.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "test"}},
	}))
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got: %T (%v)", err, err)
	}
}

func TestAnthropicProvider_MissingKey(t *testing.T) {
	_, err := NewAnthropicProvider(AnthropicConfig{})
	var auth *ErrAuth
	if !errors.As(err, &auth) {
		t.Fatalf("expected ErrAuth, got: %T (%v)", err, err)
	}
}

func TestAnthropicBuildParams_Thinking(t *testing.T) {
	p := &AnthropicProvider{model: "m"}

	params := p.buildParams(Request{ThinkingBudget: 1024, MaxTokens: 8192, Temperature: 0.5})
	if params.Thinking.OfEnabled == nil {
		t.Fatal("expected thinking to be enabled")
	}
	if params.Temperature.Valid() {
		t.Fatal("temperature must not be set together with thinking")
	}

	// Budget larger than max tokens disables thinking.
	params = p.buildParams(Request{ThinkingBudget: 1024, MaxTokens: 512})
	if params.Thinking.OfEnabled != nil {
		t.Fatal("expected thinking to be disabled")
	}
}

func TestAnthropicModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"claude-sonnet", "claude-sonnet-4-20250514"},
		{"claude-haiku", "claude-haiku-4-5-20251001"},
		{"claude-sonnet-4-20250514", "claude-sonnet-4-20250514"}, // Pass-through
	}
	for _, tt := range tests {
		got := resolveModel(tt.input, anthropicModels)
		if got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
