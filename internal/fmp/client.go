// Package fmp provides a client for the Financial Modeling Prep API.
// This package centralizes all FMP interactions: prices, analyst
// coverage, institutional ownership, transcripts, macro data, news and
// filings. Responses are translated to canonical models at this boundary;
// vendor field aliases never leak past it.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/aestimo/internal/httpclient"
)

const (
	// DefaultBaseURL is the base URL for the FMP API.
	DefaultBaseURL = "https://financialmodelingprep.com/api"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default request ceiling per minute
	// (free tier allowance).
	DefaultRateLimit = 300

	vendorName = "fmp"
)

// Client is an FMP API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	retry      *httpclient.RetryPolicy
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom request ceiling per minute.
func WithRateLimit(requestsPerMinute int) ClientOption {
	return func(c *Client) {
		c.limiter = newLimiter(requestsPerMinute)
	}
}

// WithRetry sets the retry policy applied to every request.
func WithRetry(policy *httpclient.RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	burst := requestsPerMinute / 60
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
}

// NewClient creates a new FMP API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: newLimiter(DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request to the API, retrying transient failures.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	fetch := func() error {
		return c.getOnce(ctx, path, params, result)
	}
	if c.retry != nil {
		return c.retry.Do(ctx, c.logger, vendorName+" "+path, fetch)
	}
	return fetch()
}

// getOnce performs one GET round trip.
func (c *Client) getOnce(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	// Add API key
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	// Build URL
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Log request
	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("FMP API request")
	}

	// Execute request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	// Check status
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &httpclient.APIError{
			Vendor:     vendorName,
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	// Parse response
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
