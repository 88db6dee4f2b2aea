package llm

import (
	"context"
	"errors"
	"iter"
	"math"
	"math/rand/v2"
	"time"
)

// RetryProvider is a decorator that retries transient errors with
// exponential backoff and jitter.
//
// A stream is only retried while it has not yet delivered any text. Once a
// fragment has reached the caller a retry would duplicate output, so a
// later failure is passed through.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		attempts := max(r.config.MaxAttempts, 1)

		for attempt := range attempts {
			delivered := false
			var failure error

			for chunk, err := range r.inner.Stream(ctx, req) {
				if err != nil {
					failure = err
					break
				}
				if chunk.Text != "" {
					delivered = true
				}
				if !yield(chunk, nil) {
					return
				}
			}
			if failure == nil {
				return
			}

			// Last attempt or fatal error: hand it to the caller unchanged.
			if delivered || !shouldRetry(failure) || attempt == attempts-1 {
				yield(Chunk{}, failure)
				return
			}

			wait := r.backoff(attempt, failure)
			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt+1, wait, attempts-1)
			}
			if fn := retryNotifyFrom(ctx); fn != nil {
				fn(attempt+1, wait, attempts-1)
			}
			select {
			case <-ctx.Done():
				yield(Chunk{}, ctx.Err())
				return
			case <-time.After(wait):
			}
		}
	}
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// shouldRetry determines if an error is retryable.
func shouldRetry(err error) bool {
	// Context errors are never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// A bad or missing key will not fix itself.
	var auth *ErrAuth
	if errors.As(err, &auth) {
		return false
	}

	// Rate limits, outages and network errors are treated as transient.
	return true
}

// backoff computes the wait duration for the given attempt.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	// Respect RetryAfter for rate limits.
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if r.config.MaxWait > 0 && wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}

	// Add ±20% jitter.
	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
