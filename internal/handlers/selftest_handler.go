package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/services/selftest"
)

// SelftestHandler runs the canonical end-to-end check on demand.
type SelftestHandler struct {
	selftest *selftest.Service
	logger   arbor.ILogger
}

// NewSelftestHandler creates a new SelftestHandler
func NewSelftestHandler(service *selftest.Service, logger arbor.ILogger) *SelftestHandler {
	return &SelftestHandler{
		selftest: service,
		logger:   logger,
	}
}

// RunSelftestHandler handles GET /selftest. A failing report is served
// with 503 so probes can alert on the status code alone.
func (h *SelftestHandler) RunSelftestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	report := h.selftest.Run(r.Context())
	status := http.StatusOK
	if !report.Passed {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, report)
}
