// Package finnhub provides a client for the Finnhub API, the secondary
// vendor for company news, live quotes and fundamental metrics.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/aestimo/internal/httpclient"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

const (
	// DefaultBaseURL is the base URL for the Finnhub API.
	DefaultBaseURL = "https://finnhub.io/api/v1"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimit is the default request ceiling per minute
	// (free tier allowance).
	DefaultRateLimit = 60

	vendorName = "finnhub"
)

// Client is a Finnhub API client.
type Client struct {
	client  *resty.Client
	apiKey  string
	logger  arbor.ILogger
	limiter *rate.Limiter
	retry   *httpclient.RetryPolicy
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.client.SetBaseURL(baseURL)
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.client.SetTimeout(timeout)
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
		if requestsPerMinute < 1 {
			requestsPerMinute = 1
		}
		burst := requestsPerMinute / 60
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

// WithRetry sets the retry policy applied to every request.
func WithRetry(policy *httpclient.RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient creates a new Finnhub API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	restyClient := resty.New()
	restyClient.SetBaseURL(DefaultBaseURL)
	restyClient.SetTimeout(DefaultTimeout)

	c := &Client{
		client:  restyClient,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request, retrying transient failures.
func (c *Client) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	fetch := func() error {
		return c.getOnce(ctx, path, params, result)
	}
	if c.retry != nil {
		return c.retry.Do(ctx, c.logger, vendorName+" "+path, fetch)
	}
	return fetch()
}

func (c *Client) getOnce(ctx context.Context, path string, params map[string]string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if c.logger != nil {
		c.logger.Debug().Str("path", path).Msg("Finnhub API request")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("token", c.apiKey).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode() != 200 {
		return &httpclient.APIError{
			Vendor:     vendorName,
			StatusCode: resp.StatusCode(),
			Message:    resp.String(),
			Endpoint:   path,
		}
	}

	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

type wireNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// CompanyNews retrieves date-windowed articles for a symbol.
func (c *Client) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error) {
	params := map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}

	var rows []wireNews
	if err := c.get(ctx, "/company-news", params, &rows); err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(rows))
	for _, row := range rows {
		articles = append(articles, models.NewsArticle{
			Title:       row.Headline,
			URL:         row.URL,
			Source:      vendorName,
			Publisher:   row.Source,
			PublishedAt: time.Unix(row.DateTime, 0).UTC(),
			Summary:     row.Summary,
			Symbols:     []string{symbol},
		})
	}

	return articles, nil
}

type wireQuote struct {
	Current       float64 `json:"c"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// Quote retrieves a live quote. The vendor answers zeros for unknown
// symbols; that is translated to ErrRecordNotFound here.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var row wireQuote
	if err := c.get(ctx, "/quote", map[string]string{"symbol": symbol}, &row); err != nil {
		return nil, err
	}
	if row.Current == 0 && row.Timestamp == 0 {
		return nil, interfaces.ErrRecordNotFound
	}

	return &models.Quote{
		Symbol:        symbol,
		Price:         row.Current,
		Open:          row.Open,
		DayHigh:       row.High,
		DayLow:        row.Low,
		PreviousClose: row.PreviousClose,
		Timestamp:     time.Unix(row.Timestamp, 0).UTC(),
	}, nil
}

type wireProfile struct {
	Name                 string  `json:"name"`
	Exchange             string  `json:"exchange"`
	FinnhubIndustry      string  `json:"finnhubIndustry"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	Currency             string  `json:"currency"`
	Ticker               string  `json:"ticker"`
}

// CompanyProfile retrieves the company identity block.
func (c *Client) CompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	var row wireProfile
	if err := c.get(ctx, "/stock/profile2", map[string]string{"symbol": symbol}, &row); err != nil {
		return nil, err
	}
	if row.Name == "" && row.Ticker == "" {
		return nil, interfaces.ErrRecordNotFound
	}

	return &models.CompanyProfile{
		Name:     row.Name,
		Exchange: row.Exchange,
		Industry: row.FinnhubIndustry,
		// The vendor reports market cap in millions.
		MarketCap: row.MarketCapitalization * 1e6,
		Currency:  row.Currency,
	}, nil
}

type wireMetrics struct {
	Metric map[string]json.RawMessage `json:"metric"`
}

// BasicFinancials retrieves the fundamental metric map, keeping only
// numeric entries (the vendor mixes numbers and strings).
func (c *Client) BasicFinancials(ctx context.Context, symbol string) (map[string]float64, error) {
	params := map[string]string{
		"symbol": symbol,
		"metric": "all",
	}

	var row wireMetrics
	if err := c.get(ctx, "/stock/metric", params, &row); err != nil {
		return nil, err
	}

	metrics := make(map[string]float64, len(row.Metric))
	for key, raw := range row.Metric {
		var value float64
		if err := json.Unmarshal(raw, &value); err == nil {
			metrics[key] = value
		}
	}

	return metrics, nil
}
