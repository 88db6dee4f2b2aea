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

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: server.URL + "/v1",
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func writeOpenAIChunk(w http.ResponseWriter, chunk map[string]any) {
	b, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

func TestOpenAIProvider_Stream(t *testing.T) {
	var body map[string]any
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Moin", ", ", "Welt"} {
			writeOpenAIChunk(w, map[string]any{
				"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "gpt-4o-mini",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": part}}},
			})
		}
		writeOpenAIChunk(w, map[string]any{
			"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "gpt-4o-mini",
			"choices": []map[string]any{},
			"usage":   map[string]any{"prompt_tokens": 40, "completion_tokens": 25, "total_tokens": 65},
		})
		fmt.Fprint(w, "data: [DONE]\n\n")
	}

	p := newTestOpenAIProvider(t, handler)
	var fragments []string
	var usage *Usage
	for chunk, err := range p.Stream(context.Background(), Request{
		System:   "Du bist Prof. JavaScript.",
		Messages: []Message{{Role: RoleUser, Content: "Hallo"}},
	}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if chunk.Text != "" {
			fragments = append(fragments, chunk.Text)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	if len(fragments) != 3 {
		t.Fatalf("expected 3 fragments, got %d: %q", len(fragments), fragments)
	}
	if usage == nil || usage.InputTokens != 40 || usage.OutputTokens != 25 {
		t.Fatalf("usage = %+v", usage)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user message, got %d", len(msgs))
	}
	opts, _ := body["stream_options"].(map[string]any)
	if opts["include_usage"] != true {
		t.Fatalf("expected include_usage in request, got %v", body["stream_options"])
	}
}

func TestOpenAIProvider_RateLimit(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "tokens",
				"message": "Rate limit exceeded",
				"code":    "rate_limit_exceeded",
			},
		})
	}

	p := newTestOpenAIProvider(t, handler)
	_, _, err := Collect(p.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "test"}},
	}))
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got: %T (%v)", err, err)
	}
}

func TestOpenAIProvider_InvalidKey(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "invalid_request_error",
				"message": "Incorrect API key provided",
				"code":    "invalid_api_key",
			},
		})
	}

	p := newTestOpenAIProvider(t, handler)
	_, _, err := Collect(p.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "test"}},
	}))
	var auth *ErrAuth
	if !errors.As(err, &auth) {
		t.Fatalf("expected ErrAuth, got: %T (%v)", err, err)
	}
	if Classify(err) != FailureMisconfigured {
		t.Fatalf("Classify = %q, want misconfigured", Classify(err))
	}
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "server_error",
				"message": "Internal server error",
			},
		})
	}

	p := newTestOpenAIProvider(t, handler)
	_, _, err := Collect(p.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "test"}},
	}))
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got: %T (%v)", err, err)
	}
}

func TestOpenAIProvider_ModelID(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o-mini"}
	if p.ModelID() != "gpt-4o-mini" {
		t.Fatalf("expected 'gpt-4o-mini', got %q", p.ModelID())
	}
}
