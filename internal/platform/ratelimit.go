package platform

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-github/v74/github"
)

// RetryPolicy bounds withRateLimit's backoff loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy: 3 attempts, exponential backoff
// starting at 1s and capped at 30s — the same shape as the MCP
// connection manager's reconnect backoff, reused here for API retries.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

// withRateLimit retries fn on 429, 502, 503, 504, and rate-limited 403
// responses with exponential backoff, honoring any Retry-After the API
// sent.
func withRateLimit(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == policy.MaxAttempts {
			return lastErr
		}

		delay := retryDelay(lastErr, policy, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case 429, 502, 503, 504:
			return true
		case 403:
			return respErr.Response.Header.Get("X-RateLimit-Remaining") == "0"
		}
	}
	return false
}

func retryDelay(err error, policy RetryPolicy, attempt int) time.Duration {
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return *abuseErr.RetryAfter
	}

	delay := policy.BaseDelay << (attempt - 1)
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}
