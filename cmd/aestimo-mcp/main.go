package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/aestimo/internal/common"
)

func main() {
	// The MCP server is a thin client over the running HTTP service
	baseURL := os.Getenv("AESTIMO_URL")
	if baseURL == "" {
		defaults := common.NewDefaultConfig()
		baseURL = fmt.Sprintf("http://%s:%d", defaults.Server.Host, defaults.Server.Port)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	// Minimal logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	api := &apiClient{
		baseURL: baseURL,
		// Full analyses block on upstream fetches and the LLM call
		http: &http.Client{Timeout: 120 * time.Second},
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"aestimo",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register analysis tools
	mcpServer.AddTool(createAnalyzeStockTool(), handleAnalyzeStock(api, logger))
	mcpServer.AddTool(createGetMomentumTool(), handleGetMomentum(api, logger))
	mcpServer.AddTool(createResetCacheTool(), handleResetCache(api, logger))
	mcpServer.AddTool(createRunSelftestTool(), handleRunSelftest(api, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
