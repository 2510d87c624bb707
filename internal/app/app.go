package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/finnhub"
	"github.com/ternarybob/aestimo/internal/fmp"
	"github.com/ternarybob/aestimo/internal/handlers"
	"github.com/ternarybob/aestimo/internal/httpclient"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/metrics"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/secfilings"
	"github.com/ternarybob/aestimo/internal/services/batch"
	"github.com/ternarybob/aestimo/internal/services/deferred"
	"github.com/ternarybob/aestimo/internal/services/events"
	"github.com/ternarybob/aestimo/internal/services/fragments"
	"github.com/ternarybob/aestimo/internal/services/hotcache"
	"github.com/ternarybob/aestimo/internal/services/llm"
	"github.com/ternarybob/aestimo/internal/services/orchestrator"
	"github.com/ternarybob/aestimo/internal/services/prewarm"
	"github.com/ternarybob/aestimo/internal/services/report"
	"github.com/ternarybob/aestimo/internal/services/selftest"
	"github.com/ternarybob/aestimo/internal/services/usage"
	"github.com/ternarybob/aestimo/internal/storage"
	"github.com/ternarybob/aestimo/internal/yahoo"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Instrumentation and events
	Metrics      *metrics.Registry
	EventService interfaces.EventService
	UsageMonitor *usage.Monitor

	// Upstream clients
	FMP     *fmp.Client
	Finnhub *finnhub.Client
	Yahoo   *yahoo.Client
	SEC     *secfilings.Client

	// Research pipeline
	HotCache        *hotcache.Cache
	Fragments       *fragments.Service
	LLMService      *llm.Service
	AnalysisService interfaces.AnalysisService
	DeferredQueue   interfaces.DeferredQueue
	BatchExecutor   interfaces.BatchExecutor
	PrewarmService  *prewarm.Service
	SelftestService *selftest.Service
	ReportRenderer  interfaces.ReportRenderer

	// HTTP handlers
	AnalyzeHandler  *handlers.AnalyzeHandler
	CacheHandler    *handlers.CacheHandler
	BatchHandler    *handlers.BatchHandler
	ReportHandler   *handlers.ReportHandler
	EventsHandler   *handlers.EventsHandler
	StatusHandler   *handlers.StatusHandler
	SelftestHandler *handlers.SelftestHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Event service is created early so every service can publish
	app.EventService = events.NewService(app.Logger)

	// Initialize services
	if err := app.initServices(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Start background services AFTER all handlers are initialized
	app.UsageMonitor.Start(app.ctx)
	app.DeferredQueue.Start()
	if err := app.PrewarmService.Start(); err != nil {
		app.Logger.Warn().Err(err).Msg("Prewarm schedule not started")
	}

	logger.Info().
		Bool("llm_enabled", app.LLMService.Enabled()).
		Bool("prewarm_enabled", cfg.Prewarm.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger + disk cache)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Str("cache", a.Config.Storage.Cache.Dir).
		Msg("Storage layer initialized")

	// Load variables from files (API keys, secrets). Missing files are
	// fine; keys can also arrive via environment or config.
	if err := a.StorageManager.LoadVariablesFromFiles(context.Background(), a.Config.Variables.Dir); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load variables from files")
	}

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	// Instrumentation
	a.Metrics = metrics.NewRegistry()
	a.Logger.Debug().Msg("Metrics registry initialized")

	a.UsageMonitor = usage.NewMonitor(a.Logger, &a.Config.Usage, models.AdaptiveLimits{
		MaxFilings: a.Config.Research.MaxFilingsForLLM,
		NewsLimit:  a.Config.Research.NewsArticleLimit,
	})
	a.Logger.Debug().Msg("Usage monitor initialized")

	// Upstream clients share one retry policy
	retry := httpclient.NewRetryPolicy(a.Config.Upstreams.RetryAttempts, a.Config.Upstreams.RetryDelay)
	kvStorage := a.StorageManager.KVStorage()

	fmpKey, err := common.ResolveAPIKey(context.Background(), kvStorage, "fmp_api_key", a.Config.Upstreams.FMP.APIKey)
	if err != nil {
		a.Logger.Warn().Msg("No FMP API key configured - price and analyst fragments will degrade")
	}
	a.FMP = fmp.NewClient(fmpKey,
		fmp.WithBaseURL(a.Config.Upstreams.FMP.BaseURL),
		fmp.WithTimeout(a.Config.Upstreams.FMP.RequestTimeout),
		fmp.WithRateLimit(a.Config.Upstreams.FMP.RatePerMinute),
		fmp.WithLogger(a.Logger),
		fmp.WithRetry(retry),
	)

	finnhubKey, err := common.ResolveAPIKey(context.Background(), kvStorage, "finnhub_api_key", a.Config.Upstreams.Finnhub.APIKey)
	if err != nil {
		a.Logger.Warn().Msg("No Finnhub API key configured - company fragments will degrade")
	}
	a.Finnhub = finnhub.NewClient(finnhubKey,
		finnhub.WithBaseURL(a.Config.Upstreams.Finnhub.BaseURL),
		finnhub.WithTimeout(a.Config.Upstreams.Finnhub.RequestTimeout),
		finnhub.WithLogger(a.Logger),
		finnhub.WithRetry(retry),
	)

	a.Yahoo = yahoo.NewClient(
		yahoo.WithTimeout(a.Config.Upstreams.Yahoo.RequestTimeout),
		yahoo.WithUserAgent(a.Config.Upstreams.Yahoo.UserAgent),
		yahoo.WithLogger(a.Logger),
		yahoo.WithRetry(retry),
	)

	a.SEC = secfilings.NewClient(
		secfilings.WithTimeout(a.Config.Upstreams.SEC.RequestTimeout),
		secfilings.WithUserAgent(a.Config.Upstreams.SEC.UserAgent),
		secfilings.WithLogger(a.Logger),
		secfilings.WithRetry(retry),
	)
	a.Logger.Debug().Msg("Upstream clients initialized")

	// LLM service carries both the analyzer and the summarizer passes.
	// Clients are lazy; a missing key only disables the analysis step.
	a.LLMService = llm.NewService(a.Config, a.Logger, a.StorageManager, a.UsageMonitor, a.Metrics)
	if !a.LLMService.Enabled() {
		a.Logger.Warn().Msg("No LLM API key configured - analysis runs metrics-only")
		a.Logger.Info().Msg("To enable LLM analysis, set AESTIMO_OPENAI_API_KEY or llm.openai.api_key in config")
	} else {
		a.Logger.Debug().Msg("LLM service initialized")
	}

	// Fragment builders over the vendor clients
	a.HotCache = hotcache.New(hotcache.DefaultTTL, hotcache.DefaultMaxEntries)
	a.Fragments = fragments.NewService(a.Config, a.Logger, a.StorageManager, a.HotCache, fragments.Providers{
		Quote:         a.FMP,
		QuoteFallback: a.Yahoo,
		BatchQuotes:   a.FMP,
		History:       a.FMP,
		Chart:         a.Yahoo,

		PriceTargets:    a.FMP,
		AnalystFallback: a.Yahoo,
		Ratings:         a.FMP,
		Grades:          a.FMP,
		Estimates:       a.FMP,

		Holders:     a.FMP,
		Insiders:    a.FMP,
		Transcripts: a.FMP,

		Macro:       a.FMP,
		News:        a.FMP,
		CompanyNews: a.Finnhub,
		Filings:     a.FMP,
		FilingText:  a.SEC,
		ETF:         a.FMP,
		Company:     a.Finnhub,
	}, a.LLMService, a.Metrics)
	a.Logger.Debug().Msg("Fragment service initialized")

	// Analysis pipeline
	pipeline := orchestrator.NewService(a.Config, a.Logger, a.StorageManager, a.HotCache,
		a.Fragments, a.LLMService, a.UsageMonitor, a.EventService, a.Metrics)
	a.AnalysisService = pipeline
	a.Logger.Debug().Msg("Analysis pipeline initialized")

	// Deferred queue feeds full reruns back through the pipeline
	queue := deferred.NewQueue(a.AnalysisService, a.EventService, a.Metrics, a.Logger)
	pipeline.SetDeferredQueue(queue)
	a.DeferredQueue = queue
	a.Logger.Debug().Msg("Deferred queue initialized")

	a.BatchExecutor = batch.NewExecutor(a.Config, a.Logger, a.AnalysisService, a.Fragments, a.EventService, a.Metrics)
	a.Logger.Debug().Msg("Batch executor initialized")

	a.PrewarmService = prewarm.NewService(a.Config, a.Logger, a.AnalysisService, a.EventService)
	a.Logger.Debug().Msg("Prewarm service initialized")

	a.SelftestService = selftest.NewService(a.AnalysisService, a.StorageManager, a.Config.LLM.Model, a.Logger)
	a.ReportRenderer = report.NewRenderer(a.Logger)
	a.Logger.Debug().Msg("Selftest and report services initialized")

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.AnalyzeHandler = handlers.NewAnalyzeHandler(a.AnalysisService, a.Logger)
	a.CacheHandler = handlers.NewCacheHandler(a.AnalysisService, a.Logger)
	a.BatchHandler = handlers.NewBatchHandler(a.BatchExecutor, a.Logger)
	a.ReportHandler = handlers.NewReportHandler(a.StorageManager, a.ReportRenderer, a.Config.LLM.Model, a.Logger)
	a.EventsHandler = handlers.NewEventsHandler(a.EventService, a.Logger, &a.Config.Events)
	a.StatusHandler = handlers.NewStatusHandler(a.StorageManager, a.DeferredQueue, a.UsageMonitor, a.Logger)
	a.SelftestHandler = handlers.NewSelftestHandler(a.SelftestService, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
	return nil
}

// Close gracefully shuts down all application components
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.PrewarmService != nil {
		a.PrewarmService.Stop()
	}
	if a.DeferredQueue != nil {
		a.DeferredQueue.Stop()
	}
	if a.UsageMonitor != nil {
		a.UsageMonitor.Stop()
	}
	if a.EventsHandler != nil {
		a.EventsHandler.Close()
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
