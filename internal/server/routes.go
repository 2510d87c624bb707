package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ternarybob/aestimo/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Analysis
	mux.HandleFunc("/api/analyze", s.app.AnalyzeHandler.AnalyzeRequestHandler)
	mux.HandleFunc("/api/reset-cache", s.app.CacheHandler.ResetCacheHandler)
	mux.HandleFunc("/api/batch", s.app.BatchHandler.RunBatchHandler)

	// API routes - Reports and operations
	mux.HandleFunc("/api/report", s.app.ReportHandler.GetReportHandler)
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	// WebSocket event stream
	mux.HandleFunc("/api/events", s.app.EventsHandler.HandleWebSocket)

	// Operational endpoints
	mux.HandleFunc("/selftest", s.app.SelftestHandler.RunSelftestHandler)
	if s.app.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.app.Metrics, promhttp.HandlerOpts{}))
	}

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// notFoundHandler returns a JSON 404 for unknown API paths
func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusNotFound, map[string]string{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
