package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError represents a non-2xx response from a market data vendor.
type APIError struct {
	Vendor     string
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s (status: %d, endpoint: %s)", e.Vendor, e.Message, e.StatusCode, e.Endpoint)
}

// IsNotFound reports whether the error is a vendor 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// RateLimitError represents a client-side or vendor rate limit.
type RateLimitError struct {
	Vendor     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded, retry after %v", e.Vendor, e.RetryAfter)
}

// StatusOf extracts the HTTP status code from an error chain.
// Returns 0 when the error carries no status.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
