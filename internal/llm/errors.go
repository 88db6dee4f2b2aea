package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrAuth indicates the API key is missing, invalid or lacks permission.
// It is never retried.
type ErrAuth struct {
	Err error
}

func (e *ErrAuth) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM authentication failed: %v", e.Err)
	}
	return "LLM authentication failed"
}

func (e *ErrAuth) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down or unreachable.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// Failure is the user-facing category of a failed request.
type Failure string

const (
	FailureRateLimited   Failure = "rate_limited"
	FailureMisconfigured Failure = "misconfigured"
	FailureCancelled     Failure = "cancelled"
	FailureGeneric       Failure = "generic"
)

// Classify maps an error returned by a Provider to the category used to
// explain it to the learner.
func Classify(err error) Failure {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}

	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		return FailureRateLimited
	}
	var auth *ErrAuth
	if errors.As(err, &auth) {
		return FailureMisconfigured
	}

	// SDK errors that slipped past the provider's own mapping.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "quota"):
		return FailureRateLimited
	case strings.Contains(msg, "api key"), strings.Contains(msg, "api_key"), strings.Contains(msg, "permission_denied"):
		return FailureMisconfigured
	}
	return FailureGeneric
}

// classifyStatus maps an HTTP status code from a provider SDK to a typed
// error. Codes with no special meaning return err unchanged.
func classifyStatus(code int, retryAfter time.Duration, err error) error {
	switch {
	case code == 429:
		return &ErrRateLimit{RetryAfter: retryAfter, Err: err}
	case code == 401 || code == 403:
		return &ErrAuth{Err: err}
	case code >= 500:
		return &ErrProviderUnavailable{Err: err}
	}
	return err
}

// retryAfter reads the Retry-After header (seconds form) of a provider
// response. Zero when absent.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
