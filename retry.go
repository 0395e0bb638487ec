package genflow

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// RetryPolicy describes how a remote call is retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff returns the wait before retry n (1-based).
	Backoff func(n int) time.Duration
	// Retryable decides whether an API error is worth another attempt.
	Retryable func(*APIError) bool
}

// CreateRetryPolicy retries a saturated 500 up to 3 times, waiting 2s, 4s, then 6s.
func CreateRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Backoff:    func(n int) time.Duration { return time.Duration(n) * 2 * time.Second },
		Retryable: func(e *APIError) bool {
			return e.Status == http.StatusInternalServerError && IsSaturated(e.Message)
		},
	}
}

// TransformRetryPolicy retries a 503 once after 2s.
func TransformRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 1,
		Backoff:    func(int) time.Duration { return 2 * time.Second },
		Retryable:  func(e *APIError) bool { return e.Status == http.StatusServiceUnavailable },
	}
}

// IsSaturated reports whether a server message signals transient overload.
func IsSaturated(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "saturated") || strings.Contains(msg, "负载已饱和")
}

// do runs call until it succeeds, fails with a non-retryable error or the budget is spent.
// An APIError that exhausted the budget is returned with Retryable set.
func (p RetryPolicy) do(ctx context.Context, sleep SleepFunc, log Logger, call func() error) error {
	for attempt := 1; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || p.Retryable == nil || !p.Retryable(apiErr) {
			return err
		}
		apiErr.Attempts = attempt
		if attempt > p.MaxRetries {
			apiErr.Retryable = true
			return apiErr
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		log.Warnf("%s: status=%d retry=%d/%d wait=%s", apiErr.Op, apiErr.Status, attempt, p.MaxRetries, wait)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}
