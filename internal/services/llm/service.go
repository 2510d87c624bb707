// Package llm runs the structured equity analysis call and the cheap
// narrative summarization passes. The analyzer is content-addressed:
// identical payloads under the same prompt version and model reuse
// cached output across requests, and concurrent identical requests
// collapse onto a single provider call.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/metrics"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/payload"
)

// Service implements the analyzer and summarizer against three providers:
// OpenAI (primary analysis), Anthropic (fallback retry), Gemini
// (summaries and JSON repair). Provider clients are created lazily so a
// missing key only fails the paths that need it.
type Service struct {
	config  *common.LLMConfig
	bounds  payload.Bounds
	logger  arbor.ILogger
	results interfaces.ResultsStore
	cache   interfaces.KVCache
	keys    interfaces.KeyValueStorage
	usage   interfaces.UsageMonitor
	metrics *metrics.Registry
	prices  *PriceTable

	clientMu     sync.Mutex
	openaiClient *openai.Client
	geminiClient *genai.Client
	claudeClient anthropic.Client
	claudeKey    string

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall
}

var (
	_ interfaces.Analyzer   = (*Service)(nil)
	_ interfaces.Summarizer = (*Service)(nil)
)

// inflightCall shares one in-progress analysis across concurrent callers.
// Waiters decode their own copy of the parsed bytes so per-request
// guardrail clamping never mutates shared state.
type inflightCall struct {
	done   chan struct{}
	parsed []byte
	usage  *models.LLMUsage
	err    error
}

// NewService wires the analyzer. The usage monitor and metrics registry
// are optional; nil disables that concern. The price table comes from
// config llm.pricing_path, falling back to built-in rates.
func NewService(config *common.Config, logger arbor.ILogger, storage interfaces.StorageManager, usage interfaces.UsageMonitor, registry *metrics.Registry) *Service {
	prices, err := LoadPriceTable(config.LLM.PricingPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", config.LLM.PricingPath).Msg("Price table unavailable, using built-in rates")
		prices = DefaultPriceTable()
	}

	return &Service{
		config:   &config.LLM,
		bounds:   payload.BoundsFromConfig(&config.Research),
		logger:   logger,
		results:  storage.Results(),
		cache:    storage.Cache(),
		keys:     storage.KVStorage(),
		usage:    usage,
		metrics:  registry,
		prices:   prices,
		inflight: make(map[string]*inflightCall),
	}
}

// Enabled reports whether an analysis provider key is resolvable without
// constructing a client.
func (s *Service) Enabled() bool {
	ctx := context.Background()
	if _, err := common.ResolveAPIKey(ctx, s.keys, "openai_api_key", s.config.OpenAI.APIKey); err == nil {
		return true
	}
	if _, err := common.ResolveAPIKey(ctx, s.keys, "anthropic_api_key", s.config.Anthropic.APIKey); err == nil {
		return true
	}
	return false
}

// CacheHash fingerprints one analysis request. The prompt version and
// model participate so prompt changes and model swaps never reuse stale
// output.
func CacheHash(payloadJSON []byte, promptVersion, model string) string {
	doc, _ := json.Marshal(struct {
		Payload       string `json:"payload"`
		PromptVersion string `json:"prompt_version"`
		Model         string `json:"model"`
	}{string(payloadJSON), promptVersion, model})

	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

// DeterministicSeed derives the request seed from the first 12 hex chars
// of the cache hash, bounded below 1e9.
func DeterministicSeed(hash string) int64 {
	if len(hash) < 12 {
		return 0
	}
	v, err := strconv.ParseInt(hash[:12], 16, 64)
	if err != nil {
		return 0
	}
	return v % 1_000_000_000
}

func llmOutputKey(hash string) string {
	return "llm_output_" + hash
}

// Analyze runs the structured analysis call for one compacted payload.
// Usage is metered into the monitor and metrics here; callers persist the
// returned value but must not re-record it. The target-price clamp runs
// on every return path, including cache hits, and is idempotent.
func (s *Service) Analyze(ctx context.Context, payloadJSON []byte, opts interfaces.AnalyzeOptions) (*models.AnalysisResult, *models.LLMUsage, error) {
	if len(payloadJSON) == 0 {
		return nil, nil, fmt.Errorf("empty analysis payload")
	}

	model := opts.Model
	if model == "" {
		model = s.config.Model
	}
	hash := CacheHash(payloadJSON, s.config.PromptVersion, model)

	if !opts.NoCache {
		if result, usage, ok := s.cachedResult(ctx, hash, model); ok {
			s.recordUsage(usage)
			s.applyClamp(result, opts)
			return result, usage, nil
		}
	}

	call, leader := s.joinInflight(hash)
	if !leader {
		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		if call.err != nil {
			return nil, nil, call.err
		}

		result := new(models.AnalysisResult)
		if err := json.Unmarshal(call.parsed, result); err != nil {
			return nil, nil, fmt.Errorf("failed to decode shared analysis result: %w", err)
		}
		usage := &models.LLMUsage{Model: call.usage.Model, Cached: true}
		s.recordUsage(usage)
		s.applyClamp(result, opts)
		return result, usage, nil
	}

	result, usage, err := s.analyzeWithFallback(ctx, payloadJSON, model, hash)
	if err != nil {
		s.finishInflight(hash, call, nil, nil, err)
		return nil, usage, err
	}

	parsed, err := json.Marshal(result)
	if err != nil {
		s.finishInflight(hash, call, nil, nil, err)
		return nil, usage, fmt.Errorf("failed to encode analysis result: %w", err)
	}

	s.persist(ctx, hash, parsed, usage)
	s.finishInflight(hash, call, parsed, usage, nil)

	s.applyClamp(result, opts)
	return result, usage, nil
}

// analyzeWithFallback tries the requested model, then retries the whole
// call once on the configured fallback. Usage from both attempts is
// summed so the bundle reports true spend.
func (s *Service) analyzeWithFallback(ctx context.Context, payloadJSON []byte, model, hash string) (*models.AnalysisResult, *models.LLMUsage, error) {
	result, usage, err := s.analyzeOnce(ctx, payloadJSON, model, hash)
	if err == nil {
		return result, usage, nil
	}

	fallback := s.config.FallbackModel
	if fallback == "" || fallback == model || ctx.Err() != nil {
		return nil, usage, err
	}

	s.logger.Warn().
		Err(err).
		Str("model", model).
		Str("fallback_model", fallback).
		Msg("Analysis failed, retrying on fallback model")

	fbResult, fbUsage, fbErr := s.analyzeOnce(ctx, payloadJSON, fallback, hash)

	total := &models.LLMUsage{Model: fallback}
	total.Add(usage)
	total.Add(fbUsage)
	if fbErr != nil {
		return nil, total, fmt.Errorf("analysis failed on %s and fallback %s: %w", model, fallback, fbErr)
	}
	return fbResult, total, nil
}

// analyzeOnce issues one provider call and parses the response. The seed
// travels only on the OpenAI path; other providers ignore seeding.
func (s *Service) analyzeOnce(ctx context.Context, payloadJSON []byte, model, hash string) (*models.AnalysisResult, *models.LLMUsage, error) {
	req := generateRequest{
		model:     model,
		system:    systemPrompt,
		user:      string(payloadJSON),
		jsonMode:  s.jsonFormatEnabled(model),
		maxTokens: s.config.MaxCompletionTokens,
	}
	if providerFor(model) == providerOpenAI {
		req.seed = DeterministicSeed(hash)
	}

	resp, usage, err := s.invoke(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.parseResult(ctx, resp.text)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordLLMCall(providerFor(model), model, "invalid")
		}
		return nil, usage, err
	}
	return result, usage, nil
}

// invoke dispatches one generation request under the configured timeout
// and meters its spend.
func (s *Service) invoke(ctx context.Context, req generateRequest) (*generateResponse, *models.LLMUsage, error) {
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	provider := providerFor(req.model)
	started := time.Now()

	var resp *generateResponse
	var err error
	switch provider {
	case providerAnthropic:
		resp, err = s.generateClaude(ctx, req)
	case providerGemini:
		resp, err = s.generateGemini(ctx, req)
	default:
		resp, err = s.generateOpenAI(ctx, req)
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordLLMCall(provider, req.model, "error")
		}
		return nil, nil, err
	}

	usage := s.prices.Usage(req.model, resp.promptTokens, resp.completionTokens)
	s.recordUsage(usage)
	if s.metrics != nil {
		s.metrics.RecordLLMCall(provider, req.model, "ok")
	}

	s.logger.Debug().
		Str("provider", provider).
		Str("model", req.model).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Float64("cost_usd", usage.TotalCost).
		Dur("elapsed", time.Since(started)).
		Msg("LLM call complete")

	return resp, usage, nil
}

// cachedResult checks the results store first, then the KV cache. A KV
// hit backfills the results store so the next lookup short-circuits.
func (s *Service) cachedResult(ctx context.Context, hash, model string) (*models.AnalysisResult, *models.LLMUsage, bool) {
	if record, err := s.results.GetLLMOutput(ctx, hash); err == nil && record != nil && len(record.Parsed) > 0 {
		if result := decodeRecord(record); result != nil {
			if s.metrics != nil {
				s.metrics.RecordCacheHit("llm_results")
			}
			s.logger.Debug().Str("hash", hash[:12]).Msg("LLM cache hit in results store")
			return result, cachedUsage(record, model), true
		}
	}

	record := new(models.LLMCacheRecord)
	if err := s.cache.Get(llmOutputKey(hash), 0, record); err == nil && len(record.Parsed) > 0 {
		if result := decodeRecord(record); result != nil {
			if s.metrics != nil {
				s.metrics.RecordCacheHit("llm_kv")
			}
			s.logger.Debug().Str("hash", hash[:12]).Msg("LLM cache hit in KV cache")
			record.Hash = hash
			if err := s.results.PutLLMOutput(ctx, record); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to backfill LLM output into results store")
			}
			return result, cachedUsage(record, model), true
		}
	}

	if s.metrics != nil {
		s.metrics.RecordCacheMiss("llm_output")
	}
	return nil, nil, false
}

func decodeRecord(record *models.LLMCacheRecord) *models.AnalysisResult {
	result := new(models.AnalysisResult)
	if err := json.Unmarshal(record.Parsed, result); err != nil {
		return nil
	}
	return result
}

func cachedUsage(record *models.LLMCacheRecord, model string) *models.LLMUsage {
	if record.Model != "" {
		model = record.Model
	}
	return &models.LLMUsage{Model: model, Cached: true}
}

// persist writes the unclamped parse to both cache tiers. Clamping is
// request-relative, so it reruns on every read instead of being stored.
func (s *Service) persist(ctx context.Context, hash string, parsed []byte, usage *models.LLMUsage) {
	record := &models.LLMCacheRecord{
		Hash:          hash,
		Parsed:        parsed,
		Usage:         usage,
		Model:         usage.Model,
		PromptVersion: s.config.PromptVersion,
		UpdatedAt:     time.Now().UTC(),
	}

	if err := s.results.PutLLMOutput(ctx, record); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist LLM output to results store")
	}
	if err := s.cache.Set(llmOutputKey(hash), record); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist LLM output to KV cache")
	}
}

func (s *Service) joinInflight(hash string) (*inflightCall, bool) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if call, ok := s.inflight[hash]; ok {
		return call, false
	}
	call := &inflightCall{done: make(chan struct{})}
	s.inflight[hash] = call
	return call, true
}

func (s *Service) finishInflight(hash string, call *inflightCall, parsed []byte, usage *models.LLMUsage, err error) {
	call.parsed = parsed
	call.usage = usage
	call.err = err

	s.inflightMu.Lock()
	delete(s.inflight, hash)
	s.inflightMu.Unlock()

	close(call.done)
}

// applyClamp bounds the target price around the current price. Cached
// and collapsed results pass through here too, so every variant path
// returns clamped output.
func (s *Service) applyClamp(result *models.AnalysisResult, opts interfaces.AnalyzeOptions) {
	if result == nil {
		return
	}
	if payload.ApplyGuardrails(result, opts.CurrentPrice, opts.Guardrails, opts.TargetConfidence, s.bounds) {
		s.logger.Debug().Str("note", result.Action.GuardrailNote).Msg("Target price clamped to guardrail band")
	}
}

func (s *Service) recordUsage(usage *models.LLMUsage) {
	if usage == nil {
		return
	}
	if s.usage != nil {
		s.usage.Record(usage)
	}
	if s.metrics != nil && !usage.Cached {
		s.metrics.AddLLMUsage(usage.Model, usage.PromptTokens, usage.CompletionTokens, usage.TotalCost)
	}
}

// jsonFormatEnabled reports whether the model accepts a JSON response
// format, matched by configured prefix.
func (s *Service) jsonFormatEnabled(model string) bool {
	for _, prefix := range s.config.JSONFormatModels {
		if prefix != "" && strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
