package httpclient

import (
	"context"
	"errors"
	"net"
	"regexp"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy retries transient vendor failures with a linear backoff:
// the sleep before attempt n is Delay * n, so a 1.5s delay yields waits
// of 1.5s and 3s across three attempts.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int
	// Delay is the base backoff, multiplied by the attempt number.
	Delay time.Duration
}

// NewRetryPolicy creates a retry policy with the given attempt budget.
func NewRetryPolicy(maxAttempts int, delay time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		Delay:       delay,
	}
}

// transientMessagePattern catches vendor errors that surface transient
// conditions only in the message text.
var transientMessagePattern = regexp.MustCompile(`(?i)timeout|socket hang up|temporarily unavailable`)

// IsRetryable classifies an error as transient.
// Retryable: HTTP 408/429/5xx, rate limits, connection resets, timeouts,
// unreachable hosts, temporary DNS failures, and message-level matches of
// transientMessagePattern. Everything else fails fast.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is never retried; the caller gave up.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 408:
			return true
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return transientMessagePattern.MatchString(err.Error())
}

// Do runs fn until it succeeds, a non-retryable error occurs, or the attempt
// budget is exhausted. The final error is returned as-is.
func (p *RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, op string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			if logger != nil {
				logger.Debug().
					Str("op", op).
					Int("attempt", attempt).
					Err(lastErr).
					Msg("Non-retryable error, failing immediately")
			}
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		sleep := p.Delay * time.Duration(attempt)

		// Vendor-suggested delay wins when it is longer than ours.
		var rateErr *RateLimitError
		if errors.As(lastErr, &rateErr) && rateErr.RetryAfter > sleep {
			sleep = rateErr.RetryAfter
		}

		if logger != nil {
			logger.Debug().
				Str("op", op).
				Int("attempt", attempt).
				Dur("sleep", sleep).
				Err(lastErr).
				Msg("Retrying after backoff")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}

	if logger != nil {
		logger.Warn().
			Str("op", op).
			Int("max_attempts", p.MaxAttempts).
			Err(lastErr).
			Msg("All retry attempts exhausted")
	}

	return lastErr
}
