package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", WithBaseURL(srv.URL), WithRateLimit(6000))
}

func TestCompanyNewsTranslation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company-news", r.URL.Path)
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		assert.Equal(t, "2025-10-08", r.URL.Query().Get("from"))
		w.Write([]byte(`[{"headline":"Apple ships new chip","datetime":1731006000,
			"source":"Reuters","summary":"Details...","url":"https://example.com/a"}]`))
	})

	from := time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 11, 7, 0, 0, 0, 0, time.UTC)
	articles, err := client.CompanyNews(context.Background(), "AAPL", from, to)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Apple ships new chip", articles[0].Title)
	assert.Equal(t, "finnhub", articles[0].Source)
	assert.Equal(t, "Reuters", articles[0].Publisher)
	assert.Equal(t, []string{"AAPL"}, articles[0].Symbols)
	assert.Equal(t, int64(1731006000), articles[0].PublishedAt.Unix())
}

func TestQuoteUnknownSymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c":0,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
	})

	_, err := client.Quote(context.Background(), "NOSUCH")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestCompanyProfileMarketCapScale(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Apple Inc","exchange":"NASDAQ NMS - GLOBAL MARKET",
			"finnhubIndustry":"Technology","marketCapitalization":3400000,
			"currency":"USD","ticker":"AAPL"}`))
	})

	profile, err := client.CompanyProfile(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", profile.Name)
	assert.Equal(t, 3.4e12, profile.MarketCap)
}

func TestBasicFinancialsKeepsNumericOnly(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("metric"))
		w.Write([]byte(`{"metric":{"peTTM":34.2,"52WeekHigh":260.1,"52WeekHighDate":"2025-07-15","beta":1.25}}`))
	})

	metrics, err := client.BasicFinancials(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 34.2, metrics["peTTM"])
	assert.Equal(t, 1.25, metrics["beta"])
	_, hasDate := metrics["52WeekHighDate"]
	assert.False(t, hasDate, "string metrics must be dropped")
}
