// Package secfilings downloads regulatory filing documents and extracts
// the narrative text used for MD&A summarization. HTML filings are
// cleaned and converted to markdown, then sliced to the MD&A section;
// PDF filings go through pdfcpu text extraction.
package secfilings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/aestimo/internal/httpclient"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

const (
	// DefaultUserAgent identifies the service to SEC EDGAR, which rejects
	// anonymous clients. Deployments should override it with a real
	// contact address.
	DefaultUserAgent = "aestimo research engine contact@aestimo.dev"

	// DefaultTimeout bounds a single document download.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit stays under the EDGAR fair-use ceiling of ten
	// requests per second.
	DefaultRateLimit = 480

	// maxDocumentBytes caps a download; filings occasionally ship with
	// very large embedded exhibits.
	maxDocumentBytes = 20 << 20

	vendorName = "sec"
)

// Client downloads filing documents and extracts their narrative text.
type Client struct {
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	retry      *httpclient.RetryPolicy
	tempDir    string
}

// Compile-time interface assertion
var _ interfaces.FilingTextProvider = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

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

// WithUserAgent replaces the User-Agent sent to EDGAR.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = httpclient.NewUserAgentTransport(userAgent)
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

// WithRetry sets the retry policy applied to every download.
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

// NewClient creates a new filing document client.
func NewClient(opts ...ClientOption) *Client {
	tempDir := filepath.Join(os.TempDir(), "aestimo-filings")
	os.MkdirAll(tempDir, 0755)

	c := &Client{
		httpClient: httpclient.NewHTTPClientWithUserAgent(DefaultTimeout, DefaultUserAgent),
		limiter:    newLimiter(DefaultRateLimit),
		tempDir:    tempDir,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FilingText downloads the filing at docURL and returns its narrative
// text. PDF documents go through pdfcpu extraction; HTML documents are
// cleaned, converted to markdown and sliced to the MD&A section when one
// can be located.
func (c *Client) FilingText(ctx context.Context, docURL string) (string, error) {
	body, contentType, err := c.download(ctx, docURL)
	if err != nil {
		return "", err
	}

	if isPDF(docURL, contentType, body) {
		text, err := c.extractPDFText(body)
		if err != nil {
			return "", err
		}
		section := SliceMDA(text)
		if c.logger != nil {
			c.logger.Debug().
				Str("url", docURL).
				Int("document_chars", len(text)).
				Int("mda_chars", len(section)).
				Msg("Extracted PDF filing text")
		}
		return section, nil
	}

	markdown, err := htmlToMarkdown(string(body), baseURLOf(docURL))
	if err != nil {
		return "", err
	}

	section := SliceMDA(markdown)
	if c.logger != nil {
		c.logger.Debug().
			Str("url", docURL).
			Int("document_chars", len(markdown)).
			Int("mda_chars", len(section)).
			Msg("Extracted filing MD&A")
	}
	return section, nil
}

// download fetches the document, retrying transient failures.
func (c *Client) download(ctx context.Context, docURL string) ([]byte, string, error) {
	var body []byte
	var contentType string
	fetch := func() error {
		var err error
		body, contentType, err = c.downloadOnce(ctx, docURL)
		return err
	}

	if c.retry != nil {
		if err := c.retry.Do(ctx, c.logger, vendorName+" download", fetch); err != nil {
			return nil, "", err
		}
		return body, contentType, nil
	}
	if err := fetch(); err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

// downloadOnce performs one GET round trip.
func (c *Client) downloadOnce(ctx context.Context, docURL string) ([]byte, string, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")

	if c.logger != nil {
		c.logger.Debug().Str("url", docURL).Msg("Filing download")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", &httpclient.APIError{
			Vendor:     vendorName,
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			Endpoint:   docURL,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read document: %w", err)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// isPDF reports whether the document is a PDF, checking the content type,
// the URL extension and finally the magic bytes.
func isPDF(docURL, contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	if u, err := url.Parse(docURL); err == nil {
		if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			return true
		}
	}
	return bytes.HasPrefix(body, []byte("%PDF-"))
}

// baseURLOf returns the scheme and host of docURL, used to resolve
// relative links during markdown conversion.
func baseURLOf(docURL string) string {
	u, err := url.Parse(docURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
