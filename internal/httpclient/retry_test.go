package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "api 408", err: &APIError{Vendor: "fmp", StatusCode: 408}, want: true},
		{name: "api 429", err: &APIError{Vendor: "fmp", StatusCode: 429}, want: true},
		{name: "api 500", err: &APIError{Vendor: "finnhub", StatusCode: 500}, want: true},
		{name: "api 503", err: &APIError{Vendor: "yahoo", StatusCode: 503}, want: true},
		{name: "api 400", err: &APIError{Vendor: "fmp", StatusCode: 400}, want: false},
		{name: "api 401", err: &APIError{Vendor: "fmp", StatusCode: 401}, want: false},
		{name: "api 404", err: &APIError{Vendor: "fmp", StatusCode: 404}, want: false},
		{name: "rate limit", err: &RateLimitError{Vendor: "fmp", RetryAfter: time.Second}, want: true},
		{name: "wrapped api 502", err: fmt.Errorf("quote fetch: %w", &APIError{Vendor: "fmp", StatusCode: 502}), want: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "connection reset", err: syscall.ECONNRESET, want: true},
		{name: "host unreachable", err: syscall.EHOSTUNREACH, want: true},
		{name: "temporary dns", err: &net.DNSError{Err: "server misbehaving", IsTemporary: true}, want: true},
		{name: "timeout in message", err: errors.New("request timeout while reading body"), want: true},
		{name: "socket hang up in message", err: errors.New("upstream socket hang up"), want: true},
		{name: "temporarily unavailable in message", err: errors.New("service temporarily unavailable"), want: true},
		{name: "plain error", err: errors.New("invalid symbol"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryPolicy_Do_SucceedsAfterTransientFailures(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)

	calls := 0
	err := policy.Do(context.Background(), nil, "test", func() error {
		calls++
		if calls < 3 {
			return &APIError{Vendor: "fmp", StatusCode: 500}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_Do_FailsFastOnClientError(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)

	calls := 0
	err := policy.Do(context.Background(), nil, "test", func() error {
		calls++
		return &APIError{Vendor: "fmp", StatusCode: 400, Message: "bad symbol"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
}

func TestRetryPolicy_Do_ExhaustsAttempts(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)

	calls := 0
	err := policy.Do(context.Background(), nil, "test", func() error {
		calls++
		return &APIError{Vendor: "fmp", StatusCode: 503}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_Do_LinearBackoff(t *testing.T) {
	delay := 20 * time.Millisecond
	policy := NewRetryPolicy(3, delay)

	start := time.Now()
	calls := 0
	_ = policy.Do(context.Background(), nil, "test", func() error {
		calls++
		return &APIError{Vendor: "fmp", StatusCode: 500}
	})
	elapsed := time.Since(start)

	// Linear schedule: delay*1 + delay*2 = 60ms minimum.
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, elapsed, 3*delay)
}

func TestRetryPolicy_Do_ContextCancelStopsRetries(t *testing.T) {
	policy := NewRetryPolicy(5, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, nil, "test", func() error {
		calls++
		return &APIError{Vendor: "fmp", StatusCode: 500}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 404, StatusOf(&APIError{StatusCode: 404}))
	assert.Equal(t, 500, StatusOf(fmt.Errorf("wrapped: %w", &APIError{StatusCode: 500})))
	assert.Equal(t, 0, StatusOf(errors.New("no status")))
	assert.Equal(t, 0, StatusOf(nil))
}
