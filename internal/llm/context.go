package llm

import (
	"context"
	"time"
)

type contextKey string

const purposeKey contextKey = "llm_purpose"

// Purpose labels recorded with every LLM event.
const (
	PurposeChat     = "chat"
	PurposeRun      = "run"
	PurposeDebug    = "debug"
	PurposeModule   = "module"
	PurposeGreeting = "greeting"
	PurposeContinue = "continue"
	PurposeOneShot  = "ask"
)

// WithPurpose attaches a purpose label to the context for event logging.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from the context.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

// RetryFunc is told about an upcoming retry: the retry number, how long it
// waits first and how many retries there are at most.
type RetryFunc func(attempt int, wait time.Duration, maxRetries int)

const retryKey contextKey = "llm_retry"

// WithRetryNotify attaches a per-request retry callback. RetryProvider
// calls it in addition to RetryConfig.OnRetry.
func WithRetryNotify(ctx context.Context, fn RetryFunc) context.Context {
	return context.WithValue(ctx, retryKey, fn)
}

func retryNotifyFrom(ctx context.Context) RetryFunc {
	fn, _ := ctx.Value(retryKey).(RetryFunc)
	return fn
}
