package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := NewMockProvider(
		MockStream{Fragments: []string{"ok"}},
	)
	p := WithRetry(mock, retryConfig())

	text, _, err := Collect(p.Stream(context.Background(), Request{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Fatalf("unexpected content: %s", text)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	mock := NewMockProvider(
		MockStream{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockStream{Fragments: []string{"ok"}},
	)
	var retries []int
	cfg := retryConfig()
	cfg.OnRetry = func(retry int, wait time.Duration, maxRetries int) {
		retries = append(retries, retry)
		if maxRetries != 2 {
			t.Errorf("maxRetries = %d, want 2", maxRetries)
		}
	}
	p := WithRetry(mock, cfg)

	text, _, err := Collect(p.Stream(context.Background(), Request{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Fatalf("unexpected content: %s", text)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.CallCount())
	}
	if len(retries) != 1 || retries[0] != 1 {
		t.Fatalf("OnRetry calls = %v, want [1]", retries)
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	mock := NewMockProvider(
		MockStream{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockStream{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockStream{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
	)
	p := WithRetry(mock, retryConfig())

	_, _, err := Collect(p.Stream(context.Background(), Request{}))
	if err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.CallCount())
	}
}

func TestRetry_AuthNotRetried(t *testing.T) {
	authErr := &ErrAuth{Err: errors.New("invalid key")}
	mock := NewMockProvider(
		MockStream{Err: authErr},
		MockStream{Fragments: []string{"never"}},
	)
	p := WithRetry(mock, retryConfig())

	_, _, err := Collect(p.Stream(context.Background(), Request{}))
	if err != authErr {
		t.Fatalf("expected the original ErrAuth, got: %T (%v)", err, err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.CallCount())
	}
}

func TestRetry_NoRetryAfterFirstFragment(t *testing.T) {
	mock := NewMockProvider(
		MockStream{Fragments: []string{"halb"}, Err: &ErrProviderUnavailable{}},
		MockStream{Fragments: []string{"never"}},
	)
	p := WithRetry(mock, retryConfig())

	text, _, err := Collect(p.Stream(context.Background(), Request{}))
	if err == nil {
		t.Fatal("expected error")
	}
	if text != "halb" {
		t.Fatalf("expected partial text only, got %q", text)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	mock := NewMockProvider(
		MockStream{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockStream{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockStream{Fragments: []string{"ok"}},
	)
	cfg := retryConfig()
	cfg.InitialWait = time.Hour
	cfg.MaxWait = time.Hour
	p := WithRetry(mock, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, _, err := Collect(p.Stream(ctx, Request{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call before cancel, got %d", mock.CallCount())
	}
}

func TestRetry_RateLimitRespectsRetryAfter(t *testing.T) {
	mock := NewMockProvider(
		MockStream{Err: &ErrRateLimit{RetryAfter: 1 * time.Millisecond, Err: errors.New("429")}},
		MockStream{Fragments: []string{"ok"}},
	)
	var waited time.Duration
	cfg := retryConfig()
	cfg.InitialWait = time.Hour
	cfg.OnRetry = func(_ int, wait time.Duration, _ int) { waited = wait }
	p := WithRetry(mock, cfg)

	text, _, err := Collect(p.Stream(context.Background(), Request{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Fatalf("unexpected content: %s", text)
	}
	if waited != time.Millisecond {
		t.Fatalf("expected RetryAfter wait, got %s", waited)
	}
}

func TestRetry_StopsWhenConsumerBreaks(t *testing.T) {
	mock := NewMockProvider(MockStream{Fragments: []string{"a", "b", "c"}})
	p := WithRetry(mock, retryConfig())

	var got []string
	for chunk, err := range p.Stream(context.Background(), Request{}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, chunk.Text)
		break
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(got))
	}
}

func TestRetry_ModelIDDelegates(t *testing.T) {
	mock := NewMockProvider()
	p := WithRetry(mock, retryConfig())
	if p.ModelID() != "mock" {
		t.Fatalf("expected 'mock', got %q", p.ModelID())
	}
}

func TestRetry_ContextNotifier(t *testing.T) {
	mock := NewMockProvider(
		MockStream{Err: &ErrRateLimit{Err: errors.New("busy")}},
		MockStream{Fragments: []string{"ok"}},
	)
	p := WithRetry(mock, retryConfig())

	var got []int
	ctx := WithRetryNotify(context.Background(), func(attempt int, _ time.Duration, maxRetries int) {
		got = append(got, attempt, maxRetries)
	})
	if _, _, err := Collect(p.Stream(ctx, Request{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected one notification for retry 1 of 2, got %v", got)
	}
}
