package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Research pipeline metrics
	analysesTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	fragmentSources  *prometheus.CounterVec
	cacheEvents      *prometheus.CounterVec
	llmCallsTotal    *prometheus.CounterVec
	llmTokensTotal   *prometheus.CounterVec
	llmCostUSD       prometheus.Counter
	deferredDepth    prometheus.Gauge
	batchRowsTotal   *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Pipeline metrics
	r.analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aestimo_analyses_total",
			Help: "Total number of analysis requests processed",
		},
		[]string{"mode", "status"},
	)
	r.analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aestimo_analysis_duration_seconds",
			Help:    "End-to-end analysis duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	r.fragmentSources = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aestimo_fragment_sources_total",
			Help: "Fragment builds by fragment name and winning source",
		},
		[]string{"fragment", "source"},
	)
	r.cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aestimo_cache_events_total",
			Help: "Cache lookups by tier and outcome",
		},
		[]string{"tier", "event"},
	)
	r.llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aestimo_llm_calls_total",
			Help: "LLM invocations by provider, model and outcome",
		},
		[]string{"provider", "model", "outcome"},
	)
	r.llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aestimo_llm_tokens_total",
			Help: "LLM token consumption by model and direction",
		},
		[]string{"model", "direction"},
	)
	r.llmCostUSD = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aestimo_llm_cost_usd_total",
			Help: "Accumulated LLM spend in USD",
		},
	)
	r.deferredDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aestimo_deferred_queue_depth",
			Help: "Number of requests waiting in the deferred queue",
		},
	)
	r.batchRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aestimo_batch_rows_total",
			Help: "Batch rows processed by status",
		},
		[]string{"status"},
	)

	reg.MustRegister(r.analysesTotal)
	reg.MustRegister(r.analysisDuration)
	reg.MustRegister(r.fragmentSources)
	reg.MustRegister(r.cacheEvents)
	reg.MustRegister(r.llmCallsTotal)
	reg.MustRegister(r.llmTokensTotal)
	reg.MustRegister(r.llmCostUSD)
	reg.MustRegister(r.deferredDepth)
	reg.MustRegister(r.batchRowsTotal)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordAnalysis records a completed analysis request.
func (r *Registry) RecordAnalysis(mode, status string, duration float64) {
	r.analysesTotal.WithLabelValues(mode, status).Inc()
	r.analysisDuration.Observe(duration)
}

// RecordFragmentSource records which source won a fragment build.
func (r *Registry) RecordFragmentSource(fragment, source string) {
	r.fragmentSources.WithLabelValues(fragment, source).Inc()
}

// RecordCacheHit records a cache hit for a tier.
func (r *Registry) RecordCacheHit(tier string) {
	r.cacheEvents.WithLabelValues(tier, "hit").Inc()
}

// RecordCacheMiss records a cache miss for a tier.
func (r *Registry) RecordCacheMiss(tier string) {
	r.cacheEvents.WithLabelValues(tier, "miss").Inc()
}

// RecordLLMCall records one LLM invocation.
func (r *Registry) RecordLLMCall(provider, model, outcome string) {
	r.llmCallsTotal.WithLabelValues(provider, model, outcome).Inc()
}

// AddLLMUsage accumulates token and cost counters for a model.
func (r *Registry) AddLLMUsage(model string, promptTokens, completionTokens int, costUSD float64) {
	r.llmTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	r.llmTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	if costUSD > 0 {
		r.llmCostUSD.Add(costUSD)
	}
}

// SetDeferredDepth sets the deferred queue depth gauge.
func (r *Registry) SetDeferredDepth(depth int) {
	r.deferredDepth.Set(float64(depth))
}

// RecordBatchRow records a processed batch row.
func (r *Registry) RecordBatchRow(status string) {
	r.batchRowsTotal.WithLabelValues(status).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
