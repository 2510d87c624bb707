// Package orchestrator runs one analysis end to end: request validation,
// stored-bundle reuse, concurrent fragment assembly, the LLM step and
// persistence. The request mode decides how much of that pipeline runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/metrics"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/fragments"
	"github.com/ternarybob/aestimo/internal/services/hotcache"
)

// ErrCachedResultUnavailable is returned in cached-only mode when no
// sufficiently fresh stored bundle exists. Handlers map it to HTTP 409.
var ErrCachedResultUnavailable = errors.New("cached result unavailable")

// Freshness windows for the fragments that age faster than the bundle.
// Fragments without a window here are rebuilt on every assembly; their
// builders answer from the KV cache while upstream data is still fresh.
const (
	newsFreshness     = 6 * time.Hour
	momentumFreshness = 6 * time.Hour
)

var _ interfaces.AnalysisService = (*Service)(nil)

// Service owns the analysis pipeline.
type Service struct {
	config    *common.Config
	logger    arbor.ILogger
	results   interfaces.ResultsStore
	cache     interfaces.KVCache
	hot       *hotcache.Cache
	fragments *fragments.Service
	llm       interfaces.Analyzer
	usage     interfaces.UsageMonitor
	events    interfaces.EventService
	metrics   *metrics.Registry
	deferred  interfaces.DeferredQueue

	gateMu sync.Mutex
	gates  map[string]*requestGate
}

// NewService wires the orchestrator. The metrics registry is optional;
// nil disables instrumentation.
func NewService(config *common.Config, logger arbor.ILogger, storage interfaces.StorageManager, hot *hotcache.Cache, frags *fragments.Service, llm interfaces.Analyzer, usage interfaces.UsageMonitor, events interfaces.EventService, registry *metrics.Registry) *Service {
	return &Service{
		config:    config,
		logger:    logger,
		results:   storage.Results(),
		cache:     storage.Cache(),
		hot:       hot,
		fragments: frags,
		llm:       llm,
		usage:     usage,
		events:    events,
		metrics:   registry,
		gates:     make(map[string]*requestGate),
	}
}

// SetDeferredQueue attaches the background queue once it exists. The
// queue executes through this service, so it is wired after construction.
func (s *Service) SetDeferredQueue(queue interfaces.DeferredQueue) {
	s.deferred = queue
}

// run carries one validated request through the pipeline.
type run struct {
	ticker     common.Ticker
	baseline   time.Time
	historical bool
	mode       models.Mode
	model      string
	key        models.RequestKey
	ttl        time.Duration

	storedBundle *models.AnalysisBundle
	storedAge    time.Duration
}

// Analyze runs or replays one analysis per the request's mode. Writes for
// a given RequestKey are serialized: a second caller blocks until the
// first finishes, then usually answers from the freshly stored bundle.
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisBundle, error) {
	r, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	unlock := s.lockRequest(r.key.String())
	defer unlock()

	started := time.Now()
	s.publish(ctx, interfaces.EventAnalysisStarted, r.ticker.Symbol, map[string]interface{}{
		"date":    r.key.DateString(),
		"mode":    string(r.mode),
		"variant": r.key.ModelVariant,
	})

	bundle, status, err := s.execute(ctx, r)
	if s.metrics != nil {
		s.metrics.RecordAnalysis(string(r.mode), status, time.Since(started).Seconds())
	}
	if err != nil {
		s.logger.Warn().Str("ticker", r.ticker.Symbol).Str("mode", string(r.mode)).Err(err).Msg("Analysis failed")
		s.publish(ctx, interfaces.EventAnalysisFailed, r.ticker.Symbol, map[string]interface{}{
			"date":  r.key.DateString(),
			"mode":  string(r.mode),
			"error": err.Error(),
		})
		return nil, err
	}

	s.logger.Info().
		Str("ticker", r.ticker.Symbol).
		Str("date", r.key.DateString()).
		Str("variant", r.key.ModelVariant).
		Str("status", status).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("Analysis completed")
	s.publish(ctx, interfaces.EventAnalysisCompleted, r.ticker.Symbol, map[string]interface{}{
		"date":        r.key.DateString(),
		"mode":        string(r.mode),
		"variant":     r.key.ModelVariant,
		"status":      status,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return bundle, nil
}

// prepare validates the request and resolves the derived run parameters.
func (s *Service) prepare(req models.AnalysisRequest) (*run, error) {
	ticker := common.ParseTicker(req.Ticker)
	if !ticker.Valid() {
		return nil, &models.ValidationError{Field: "ticker", Reason: "symbol is required"}
	}

	now := time.Now()
	baseline, err := common.ParseBaselineDate(req.Date, now)
	if err != nil {
		return nil, &models.ValidationError{Field: "date", Reason: err.Error()}
	}

	mode, err := models.ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}

	model := req.EffectiveModel()
	if model == "" {
		model = s.config.LLM.Model
	}

	historical := common.IsHistoricalDate(baseline, now)
	ttl := time.Duration(s.config.Research.RealtimeResultTTLHours) * time.Hour
	if historical {
		ttl = time.Duration(s.config.Research.HistoricalResultTTLDays) * 24 * time.Hour
	}

	return &run{
		ticker:     ticker,
		baseline:   baseline,
		historical: historical,
		mode:       mode,
		model:      model,
		key: models.RequestKey{
			Ticker:       ticker.Symbol,
			BaselineDate: baseline,
			ModelVariant: models.ResolveVariant(model, mode.SkipsLLM()),
		},
		ttl: ttl,
	}, nil
}

// execute drives the mode state machine once the request is validated.
func (s *Service) execute(ctx context.Context, r *run) (*models.AnalysisBundle, string, error) {
	s.loadStored(ctx, r)

	if r.mode == models.ModeCachedOnly {
		if r.storedBundle != nil && r.storedAge <= r.ttl {
			s.cacheEvent(true)
			return r.storedBundle, "cached", nil
		}
		s.cacheEvent(false)
		return nil, "miss", fmt.Errorf("%w: %s", ErrCachedResultUnavailable, r.key.String())
	}

	bundle := s.reusableBundle(r)
	status := "cached"
	if bundle == nil {
		var err error
		bundle, err = s.assemble(ctx, r)
		if err != nil {
			return nil, "error", err
		}
		status = "ok"
	}
	s.cacheEvent(status == "cached")

	if r.mode == models.ModeDeferred {
		s.enqueueFullRerun(ctx, r)
	}
	return bundle, status, nil
}

// loadStored resolves the stored record for the run's variant. When the
// exact variant is absent and the run needs LLM output, a bundle stored
// under the bare model name, written before run variants existed, is
// adopted and rewritten under the current variant.
func (s *Service) loadStored(ctx context.Context, r *run) {
	record, err := s.results.GetBundle(ctx, r.key.Ticker, r.key.DateString(), r.key.ModelVariant)
	if err != nil {
		if !errors.Is(err, interfaces.ErrRecordNotFound) {
			s.logger.Warn().Str("key", r.key.String()).Err(err).Msg("Results store read failed")
			return
		}
		if r.mode.SkipsLLM() {
			return
		}
		record = s.adoptLegacyRecord(ctx, r)
		if record == nil {
			return
		}
	}

	bundle, err := record.DecodeBundle()
	if err != nil {
		s.logger.Warn().Str("key", record.Key).Err(err).Msg("Stored bundle failed to decode")
		return
	}

	r.storedBundle = bundle
	r.storedAge = time.Since(record.UpdatedAt)
	if !bundle.GeneratedAt.IsZero() {
		r.storedAge = time.Since(bundle.GeneratedAt)
	}
}

// adoptLegacyRecord migrates a bare-model record to the current variant.
// Legacy records always carried LLM output, so only LLM-backed runs look
// for them. Freshness still follows the bundle's GeneratedAt, not the
// rewrite time.
func (s *Service) adoptLegacyRecord(ctx context.Context, r *run) *models.AnalysisRecord {
	record, err := s.results.GetBundle(ctx, r.key.Ticker, r.key.DateString(), r.model)
	if err != nil {
		return nil
	}

	rewritten := *record
	rewritten.Key = r.key.String()
	rewritten.ModelVariant = r.key.ModelVariant
	if err := s.results.PutBundle(ctx, &rewritten); err != nil {
		s.logger.Warn().Str("key", rewritten.Key).Err(err).Msg("Failed to rewrite legacy analysis record")
	}

	s.logger.Info().Str("ticker", r.key.Ticker).Str("variant", r.key.ModelVariant).Msg("Adopted legacy analysis record")
	return &rewritten
}

// reusableBundle reports whether the stored bundle answers the request
// without any rebuilding: every fragment inside its freshness window and,
// for LLM-backed runs, a parsed analysis present.
func (s *Service) reusableBundle(r *run) *models.AnalysisBundle {
	if r.storedBundle == nil || r.storedAge > r.ttl {
		return nil
	}
	if !r.historical && (r.storedAge > newsFreshness || r.storedAge > momentumFreshness) {
		return nil
	}
	if !r.mode.SkipsLLM() && r.storedBundle.Analysis == nil {
		return nil
	}
	return r.storedBundle
}

// freshFragment reports whether the stored bundle is young enough to stand
// in for a fragment with the given freshness window. Historical baselines
// age with the bundle TTL since past-dated data never moves.
func (s *Service) freshFragment(r *run, window time.Duration) bool {
	if r.storedBundle == nil {
		return false
	}
	if r.historical {
		window = r.ttl
	}
	return r.storedAge <= window
}

func (s *Service) enqueueFullRerun(ctx context.Context, r *run) {
	if s.deferred == nil {
		s.logger.Warn().Str("ticker", r.ticker.Symbol).Msg("Deferred mode requested without a queue")
		return
	}

	req := models.AnalysisRequest{
		Ticker: r.ticker.Symbol,
		Date:   r.key.DateString(),
		Model:  r.model,
		Mode:   models.ModeFull,
	}
	if err := s.deferred.Enqueue(req); err != nil {
		s.logger.Warn().Str("ticker", r.ticker.Symbol).Err(err).Msg("Failed to enqueue deferred completion")
		return
	}

	s.publish(ctx, interfaces.EventDeferredQueued, r.ticker.Symbol, map[string]interface{}{
		"date":  r.key.DateString(),
		"model": r.model,
		"depth": s.deferred.Depth(),
	})
}

// ResetCaches removes the stored bundles for every model variant plus the
// ticker's KV cache entries, optionally constrained to one date, and
// flushes the process hot cache. Returns the number of entries removed.
func (s *Service) ResetCaches(ctx context.Context, ticker, date, model string) (int, error) {
	parsed := common.ParseTicker(ticker)
	if !parsed.Valid() {
		return 0, &models.ValidationError{Field: "ticker", Reason: "symbol is required"}
	}
	if date != "" {
		if _, err := common.ParseBaselineDate(date, time.Now()); err != nil {
			return 0, &models.ValidationError{Field: "date", Reason: err.Error()}
		}
	}
	if model == "" {
		model = s.config.LLM.Model
	}

	records, err := s.results.DeleteVariants(ctx, parsed.Symbol, date, model)
	if err != nil {
		return 0, fmt.Errorf("delete stored bundles for %s: %w", parsed.Symbol, err)
	}

	matchers := []string{parsed.CacheToken()}
	if date != "" {
		matchers = append(matchers, date)
	}
	cleared, err := s.cache.ClearMatching(matchers...)
	if err != nil {
		return records, fmt.Errorf("clear cache entries for %s: %w", parsed.Symbol, err)
	}

	if s.hot != nil {
		s.hot.Flush()
	}

	s.logger.Info().
		Str("ticker", parsed.Symbol).
		Str("date", date).
		Int("records", records).
		Int("cache_files", cleared).
		Msg("Reset analysis caches")
	return records + cleared, nil
}

// requestGate serializes assemblies per RequestKey.
type requestGate struct {
	mu   sync.Mutex
	refs int
}

func (s *Service) lockRequest(key string) func() {
	s.gateMu.Lock()
	gate, ok := s.gates[key]
	if !ok {
		gate = &requestGate{}
		s.gates[key] = gate
	}
	gate.refs++
	s.gateMu.Unlock()

	gate.mu.Lock()
	return func() {
		gate.mu.Unlock()
		s.gateMu.Lock()
		gate.refs--
		if gate.refs == 0 {
			delete(s.gates, key)
		}
		s.gateMu.Unlock()
	}
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, ticker string, payload interface{}) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{Type: eventType, Ticker: ticker, Payload: payload, At: time.Now().UTC()}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Debug().Str("event", string(eventType)).Err(err).Msg("Event publish failed")
	}
}

func (s *Service) adaptiveLimits() models.AdaptiveLimits {
	if s.usage != nil {
		return s.usage.Limits()
	}
	return models.AdaptiveLimits{
		MaxFilings: s.config.Research.MaxFilingsForLLM,
		NewsLimit:  s.config.Research.NewsArticleLimit,
	}
}

func (s *Service) llmEnabled(mode models.Mode) bool {
	return s.llm != nil && s.llm.Enabled() && !mode.SkipsLLM()
}

func (s *Service) cacheEvent(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit("results")
	} else {
		s.metrics.RecordCacheMiss("results")
	}
}
