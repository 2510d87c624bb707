// Package prewarm keeps the watchlist warm: one analysis pass per
// configured ticker at startup and on every interval, so interactive
// requests land on fresh caches.
package prewarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Service cycles the configured tickers through the analysis pipeline.
type Service struct {
	config   *common.Config
	logger   arbor.ILogger
	analyses interfaces.AnalysisService
	events   interfaces.EventService

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService wires the prewarmer to the analysis service it warms.
func NewService(config *common.Config, logger arbor.ILogger, analyses interfaces.AnalysisService, events interfaces.EventService) *Service {
	return &Service{
		config:   config,
		logger:   logger,
		analyses: analyses,
		events:   events,
		cron:     cron.New(),
	}
}

// Start runs one warm cycle immediately and schedules the recurring ones.
// A disabled or empty configuration is a no-op.
func (s *Service) Start() error {
	cfg := s.config.Prewarm
	if !cfg.Enabled || len(cfg.Tickers) == 0 {
		s.logger.Debug().Msg("Prewarm disabled")
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("prewarm already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	interval := cfg.IntervalHours
	if interval < 1 {
		interval = 6
	}
	spec := fmt.Sprintf("@every %dh", interval)
	if _, err := s.cron.AddFunc(spec, s.runCycle); err != nil {
		return fmt.Errorf("schedule prewarm: %w", err)
	}
	s.cron.Start()

	s.logger.Info().
		Int("tickers", len(cfg.Tickers)).
		Str("schedule", spec).
		Bool("include_llm", cfg.IncludeLLM).
		Msg("Prewarm scheduled")

	common.SafeGo(s.logger, "prewarm-initial", s.runCycle)
	return nil
}

// Stop halts the schedule and cancels a cycle in flight.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	s.cron.Stop()
	s.logger.Info().Msg("Prewarm stopped")
}

// runCycle warms every configured ticker at today's date. Failures are
// logged per ticker and the cycle continues.
func (s *Service) runCycle() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := s.config.Prewarm
	mode := models.ModeMetricsOnly
	if cfg.IncludeLLM {
		mode = models.ModeFull
	}

	started := time.Now()
	warmed := 0
	failed := 0
	for _, raw := range cfg.Tickers {
		if ctx.Err() != nil {
			return
		}
		ticker := common.ParseTicker(raw)
		if !ticker.Valid() {
			continue
		}
		if _, err := s.analyses.Analyze(ctx, models.AnalysisRequest{Ticker: ticker.Symbol, Mode: mode}); err != nil {
			failed++
			s.logger.Warn().
				Str("ticker", ticker.Symbol).
				Err(err).
				Msg("Prewarm analysis failed")
			continue
		}
		warmed++
	}

	s.logger.Info().
		Int("warmed", warmed).
		Int("failed", failed).
		Str("mode", string(mode)).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("Prewarm cycle completed")
	s.publishCycle(warmed, failed, mode)
}

func (s *Service) publishCycle(warmed, failed int, mode models.Mode) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{
		Type: interfaces.EventPrewarmCompleted,
		Payload: map[string]interface{}{
			"warmed": warmed,
			"failed": failed,
			"mode":   string(mode),
		},
		At: time.Now().UTC(),
	}
	if err := s.events.Publish(context.Background(), event); err != nil {
		s.logger.Debug().Err(err).Msg("Prewarm event publish failed")
	}
}
