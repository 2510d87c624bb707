// Package httpclient provides shared HTTP plumbing for the market data
// vendors: client construction, typed API errors, and the retry policy.
package httpclient

import (
	"net/http"
	"time"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewHTTPClientWithUserAgent creates an HTTP client that stamps every request
// with the given User-Agent. Yahoo endpoints reject the Go default agent and
// SEC EDGAR requires a descriptive one.
func NewHTTPClientWithUserAgent(timeout time.Duration, userAgent string) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewUserAgentTransport(userAgent),
	}
}

// NewUserAgentTransport wraps the default transport so every request
// carries the given User-Agent unless one is already set.
func NewUserAgentTransport(userAgent string) http.RoundTripper {
	return &userAgentTransport{
		agent: userAgent,
		base:  http.DefaultTransport,
	}
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.base.RoundTrip(req)
}
