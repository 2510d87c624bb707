package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(mfs) == 0 {
		t.Error("expected go runtime metrics to be registered")
	}
}

func TestRecordRequestStatusBuckets(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			reg := NewRegistry()
			reg.RecordRequest("GET", "/api/analyze", tt.status, 0.01)

			if !hasLabelValue(t, reg, "http_requests_total", "status", tt.expected) {
				t.Errorf("expected status label %s for code %d", tt.expected, tt.status)
			}
		})
	}
}

func TestAnalysisAndLLMCounters(t *testing.T) {
	reg := NewRegistry()

	reg.RecordAnalysis("full", "ok", 2.4)
	reg.RecordFragmentSource("news", "cache")
	reg.RecordCacheHit("hot")
	reg.RecordCacheMiss("disk")
	reg.RecordLLMCall("openai", "gpt-4o", "cached")
	reg.AddLLMUsage("gpt-4o", 1200, 400, 0.018)
	reg.RecordBatchRow("memoized")
	reg.SetDeferredDepth(3)

	for _, name := range []string{
		"aestimo_analyses_total",
		"aestimo_fragment_sources_total",
		"aestimo_cache_events_total",
		"aestimo_llm_calls_total",
		"aestimo_llm_tokens_total",
		"aestimo_llm_cost_usd_total",
		"aestimo_batch_rows_total",
		"aestimo_deferred_queue_depth",
	} {
		if !hasMetric(t, reg, name) {
			t.Errorf("expected metric %s to be populated", name)
		}
	}
}

func TestHTTPMiddlewareRecords(t *testing.T) {
	reg := NewRegistry()
	handler := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !hasLabelValue(t, reg, "http_requests_total", "status", "2xx") {
		t.Error("expected middleware to record the request")
	}
}

func hasMetric(t *testing.T, reg *Registry, name string) bool {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return true
		}
	}
	return false
}

func hasLabelValue(t *testing.T, reg *Registry, name, label, value string) bool {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return true
				}
			}
		}
	}
	return false
}

// Ensure the registry implements prometheus.Gatherer interface
func TestRegistryImplementsGatherer(t *testing.T) {
	reg := NewRegistry()
	var _ prometheus.Gatherer = reg
}
