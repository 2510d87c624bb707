package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/selftest"
)

// apiClient wraps the analysis service HTTP API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func (c *apiClient) analyze(ctx context.Context, ticker, date, model, mode string) (*models.AnalysisBundle, error) {
	body := map[string]string{"ticker": ticker}
	if date != "" {
		body["date"] = date
	}
	if model != "" {
		body["model"] = model
	}
	if mode != "" {
		body["mode"] = mode
	}

	raw, status, err := c.post(ctx, "/api/analyze", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apiError("/api/analyze", status, raw)
	}

	var bundle models.AnalysisBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &bundle, nil
}

func (c *apiClient) resetCache(ctx context.Context, ticker, date, model string) (int, error) {
	body := map[string]string{"ticker": ticker}
	if date != "" {
		body["date"] = date
	}
	if model != "" {
		body["model"] = model
	}

	raw, status, err := c.post(ctx, "/api/reset-cache", body)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, apiError("/api/reset-cache", status, raw)
	}

	var resp struct {
		OK      bool `json:"ok"`
		Cleared int  `json:"cleared_cache_files"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return resp.Cleared, nil
}

// selftest fetches the self-test report. A failed run answers 503 with the
// same report body, so both statuses decode.
func (c *apiClient) selftest(ctx context.Context) (*selftest.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/selftest", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call /selftest: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, apiError("/selftest", resp.StatusCode, raw)
	}

	var report selftest.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

func (c *apiClient) post(ctx context.Context, path string, body any) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// apiError extracts the {"error": "..."} body the API answers with.
func apiError(path string, status int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return fmt.Errorf("%s: %s (HTTP %d)", path, body.Error, status)
	}
	return fmt.Errorf("%s: HTTP %d", path, status)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// createAnalyzeStockTool returns the analyze_stock tool definition
func createAnalyzeStockTool() mcp.Tool {
	return mcp.NewTool("analyze_stock",
		mcp.WithDescription("Run an equity research analysis for a ticker and return the summary (rating, target price, thesis, momentum, valuation)"),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Stock ticker symbol, e.g. NVDA"),
		),
		mcp.WithString("date",
			mcp.Description("Baseline date YYYY-MM-DD (default: today)"),
		),
		mcp.WithString("model",
			mcp.Description("LLM model override, e.g. gpt-5-mini"),
		),
		mcp.WithString("mode",
			mcp.Description("Analysis mode: full, cached-only, metrics-only or deferred (default: full)"),
		),
	)
}

// createGetMomentumTool returns the get_momentum tool definition
func createGetMomentumTool() mcp.Tool {
	return mcp.NewTool("get_momentum",
		mcp.WithDescription("Compute price momentum for a ticker (score, trailing returns, moving averages, RSI) without invoking the LLM"),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Stock ticker symbol, e.g. NVDA"),
		),
		mcp.WithString("date",
			mcp.Description("Baseline date YYYY-MM-DD (default: today)"),
		),
	)
}

// createResetCacheTool returns the reset_cache tool definition
func createResetCacheTool() mcp.Tool {
	return mcp.NewTool("reset_cache",
		mcp.WithDescription("Delete cached analysis results and upstream fragments for a ticker so the next run refetches everything"),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Stock ticker symbol, e.g. NVDA"),
		),
		mcp.WithString("date",
			mcp.Description("Restrict the reset to one baseline date YYYY-MM-DD"),
		),
		mcp.WithString("model",
			mcp.Description("Restrict the reset to one model's results"),
		),
	)
}

// createRunSelftestTool returns the run_selftest tool definition
func createRunSelftestTool() mcp.Tool {
	return mcp.NewTool("run_selftest",
		mcp.WithDescription("Run the service self-test (storage roundtrip, metrics pipeline, cache replay) and report each check"),
	)
}

// handleAnalyzeStock implements the analyze_stock tool
func handleAnalyzeStock(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, err := request.RequireString("ticker")
		if err != nil || strings.TrimSpace(ticker) == "" {
			return textResult("Error: ticker parameter is required"), nil
		}

		date := request.GetString("date", "")
		model := request.GetString("model", "")
		mode := request.GetString("mode", "")
		if _, err := models.ParseMode(mode); err != nil {
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		bundle, err := api.analyze(ctx, ticker, date, model, mode)
		if err != nil {
			logger.Error().Err(err).Str("ticker", ticker).Msg("Analyze failed")
			return textResult(fmt.Sprintf("Analyze error: %v", err)), nil
		}

		return textResult(formatBundle(bundle)), nil
	}
}

// handleGetMomentum implements the get_momentum tool
func handleGetMomentum(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, err := request.RequireString("ticker")
		if err != nil || strings.TrimSpace(ticker) == "" {
			return textResult("Error: ticker parameter is required"), nil
		}
		date := request.GetString("date", "")

		// Metrics-only skips the LLM and answers from price history alone
		bundle, err := api.analyze(ctx, ticker, date, "", string(models.ModeMetricsOnly))
		if err != nil {
			logger.Error().Err(err).Str("ticker", ticker).Msg("Momentum fetch failed")
			return textResult(fmt.Sprintf("Momentum error: %v", err)), nil
		}
		if bundle.Momentum == nil {
			return textResult(fmt.Sprintf("No momentum data available for %s", bundle.Input.Ticker)), nil
		}

		return textResult(formatMomentum(bundle.Input, bundle.Momentum)), nil
	}
}

// handleResetCache implements the reset_cache tool
func handleResetCache(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, err := request.RequireString("ticker")
		if err != nil || strings.TrimSpace(ticker) == "" {
			return textResult("Error: ticker parameter is required"), nil
		}
		date := request.GetString("date", "")
		model := request.GetString("model", "")

		cleared, err := api.resetCache(ctx, ticker, date, model)
		if err != nil {
			logger.Error().Err(err).Str("ticker", ticker).Msg("Reset cache failed")
			return textResult(fmt.Sprintf("Reset error: %v", err)), nil
		}

		scope := strings.ToUpper(strings.TrimSpace(ticker))
		if date != "" {
			scope += " on " + date
		}
		if model != "" {
			scope += " for model " + model
		}
		return textResult(fmt.Sprintf("Cleared %d cached entries for %s. The next analysis refetches all upstream data.", cleared, scope)), nil
	}
}

// handleRunSelftest implements the run_selftest tool
func handleRunSelftest(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := api.selftest(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Selftest failed")
			return textResult(fmt.Sprintf("Selftest error: %v", err)), nil
		}

		return textResult(formatSelftest(report)), nil
	}
}

// formatBundle renders an analysis bundle as markdown
func formatBundle(bundle *models.AnalysisBundle) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s - %s\n\n", bundle.Input.Ticker, bundle.Input.Date))

	if fh := bundle.Fetched.FinnhubSummary; fh != nil && fh.Company != nil && fh.Company.Name != "" {
		sb.WriteString(fmt.Sprintf("**Company:** %s (%s, %s)\n\n", fh.Company.Name, fh.Company.Exchange, fh.Company.Sector))
	}

	if a := bundle.Analysis; a != nil {
		sb.WriteString(fmt.Sprintf("**Rating:** %s", a.Action.Rating))
		if a.Action.TargetPrice != nil {
			sb.WriteString(fmt.Sprintf("  **Target:** $%.2f", *a.Action.TargetPrice))
		}
		if a.Action.Confidence != "" {
			sb.WriteString(fmt.Sprintf("  **Confidence:** %s", a.Action.Confidence))
		}
		sb.WriteString("\n")
		if a.QualityScore != nil {
			sb.WriteString(fmt.Sprintf("**Quality score:** %.1f\n", *a.QualityScore))
		}
		if a.Action.GuardrailNote != "" {
			sb.WriteString(fmt.Sprintf("**Guardrail:** %s\n", a.Action.GuardrailNote))
		}
		sb.WriteString("\n")

		if a.Thesis != "" {
			sb.WriteString(a.Thesis)
			sb.WriteString("\n\n")
		}
		if len(a.Highlights) > 0 {
			sb.WriteString("**Highlights:**\n")
			for _, h := range a.Highlights {
				sb.WriteString(fmt.Sprintf("- %s\n", h))
			}
			sb.WriteString("\n")
		}
		if len(a.Risks) > 0 {
			sb.WriteString("**Risks:**\n")
			for _, r := range a.Risks {
				sb.WriteString(fmt.Sprintf("- %s\n", r))
			}
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("_No LLM analysis in this bundle (metrics-only run)._\n\n")
	}

	if m := bundle.Momentum; m != nil && m.Error == "" {
		sb.WriteString(fmt.Sprintf("**Momentum:** %.1f (%s) | RSI14 %.1f | 3M %+.1f%%\n",
			m.Score, m.TrendTag, m.RSI14, m.Returns.M3*100))
	}
	if v := bundle.Valuation; v != nil {
		sb.WriteString(fmt.Sprintf("**Price:** $%.2f", v.Price))
		if v.UpsidePercent != nil {
			sb.WriteString(fmt.Sprintf("  **Upside to target:** %+.1f%%", *v.UpsidePercent))
		}
		sb.WriteString("\n")
	}
	if u := bundle.LLMUsage; u != nil {
		sb.WriteString(fmt.Sprintf("**LLM usage:** %d tokens, $%.4f (%s)\n", u.TotalTokens, u.TotalCost, bundle.AnalysisModel))
	}

	return sb.String()
}

// formatMomentum renders momentum metrics as markdown
func formatMomentum(input models.BundleInput, m *models.MomentumMetrics) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s Momentum (%s)\n\n", input.Ticker, m.ReferenceDate))

	if m.Error != "" {
		sb.WriteString(fmt.Sprintf("Momentum unavailable: %s\n", m.Error))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("**Score:** %.1f / 100 (%s)\n", m.Score, m.TrendTag))
	sb.WriteString(fmt.Sprintf("**Returns:** 3M %+.1f%% | 6M %+.1f%% | 12M %+.1f%%\n",
		m.Returns.M3*100, m.Returns.M6*100, m.Returns.M12*100))
	sb.WriteString(fmt.Sprintf("**Moving averages:** SMA20 %.2f | SMA50 %.2f | SMA200 %.2f\n",
		m.MovingAverages.SMA20, m.MovingAverages.SMA50, m.MovingAverages.SMA200))
	sb.WriteString(fmt.Sprintf("**Above SMA50:** %t  **Above SMA200:** %t\n",
		m.PriceVsMA.AboveSMA50, m.PriceVsMA.AboveSMA200))
	sb.WriteString(fmt.Sprintf("**RSI(14):** %.1f  **ATR(14):** %.2f  **Volume ratio:** %.2f\n",
		m.RSI14, m.ATR14, m.VolumeRatio))
	if m.ETF != nil {
		sb.WriteString(fmt.Sprintf("**Sector ETF:** %s %+.1f%% (3m)\n", m.ETF.Symbol, m.ETF.Return3M*100))
	}

	return sb.String()
}

// formatSelftest renders the self-test report as markdown
func formatSelftest(report *selftest.Report) string {
	var sb strings.Builder

	verdict := "PASSED"
	if !report.Passed {
		verdict = "FAILED"
	}
	sb.WriteString(fmt.Sprintf("## Self-test %s (%d ms)\n\n", verdict, report.ElapsedMS))
	sb.WriteString(fmt.Sprintf("Ticker: %s  Date: %s\n\n", report.Ticker, report.Date))

	for _, check := range report.Checks {
		mark := "[PASS]"
		if !check.Passed {
			mark = "[FAIL]"
		}
		sb.WriteString(fmt.Sprintf("- %s %s (%d ms)", mark, check.Name, check.DurationMS))
		if check.Detail != "" {
			sb.WriteString(fmt.Sprintf(": %s", check.Detail))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
