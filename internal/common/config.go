package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Variables   KeysDirConfig  `toml:"variables"` // Key/value files (./keys/*.toml) for secrets and settings
	Upstreams   UpstreamConfig `toml:"upstreams"`
	Research    ResearchConfig `toml:"research"`
	LLM         LLMConfig      `toml:"llm"`
	Batch       BatchConfig    `toml:"batch"`
	Prewarm     PrewarmConfig  `toml:"prewarm"`
	Usage       UsageConfig    `toml:"usage"`
	Events      EventsConfig   `toml:"events"`
	Report      ReportConfig   `toml:"report"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig   `toml:"badger"`
	Cache  CacheDirConfig `toml:"cache"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// CacheDirConfig configures the on-disk fragment cache (one JSON file per key).
type CacheDirConfig struct {
	Dir string `toml:"dir"` // Cache directory path
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// UpstreamConfig groups the market data vendor settings.
type UpstreamConfig struct {
	RetryAttempts int           `toml:"retry_attempts" validate:"min=1"` // Attempts per request including the first
	RetryDelay    time.Duration `toml:"retry_delay"`                     // Base delay, multiplied by the attempt number
	FMP           FMPConfig     `toml:"fmp"`
	Finnhub       FinnhubConfig `toml:"finnhub"`
	Yahoo         YahooConfig   `toml:"yahoo"`
	SEC           SECConfig     `toml:"sec"`
}

// FMPConfig contains Financial Modeling Prep API configuration
type FMPConfig struct {
	APIKey         string        `toml:"api_key"`
	BaseURL        string        `toml:"base_url"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	RatePerMinute  int           `toml:"rate_per_minute"` // Client-side request ceiling (free tier: 300/min)
}

// FinnhubConfig contains Finnhub API configuration
type FinnhubConfig struct {
	APIKey         string        `toml:"api_key"`
	BaseURL        string        `toml:"base_url"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// YahooConfig contains Yahoo Finance endpoint configuration (no key required)
type YahooConfig struct {
	RequestTimeout time.Duration `toml:"request_timeout"`
	UserAgent      string        `toml:"user_agent"`
}

// SECConfig contains SEC EDGAR access configuration.
// EDGAR requires a descriptive User-Agent with contact details.
type SECConfig struct {
	UserAgent      string        `toml:"user_agent"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// ResearchConfig contains cache lifetimes and scoring thresholds for the
// research pipeline. Durations are expressed in the unit named by the key.
type ResearchConfig struct {
	RealtimeResultTTLHours     int     `toml:"realtime_result_ttl_hours" validate:"min=1"`
	HistoricalResultTTLDays    int     `toml:"historical_result_ttl_days" validate:"min=1"`
	FilingSummaryTTLDays       int     `toml:"filing_summary_ttl_days" validate:"min=1"`
	NewsCacheTTLHours          int     `toml:"news_cache_ttl_hours" validate:"min=1"`
	MomentumCacheTTLHours      int     `toml:"momentum_cache_ttl_hours" validate:"min=1"`
	ThirteenFTTLDays           int     `toml:"thirteenf_ttl_days" validate:"min=1"`
	EarningsCallTTLDays        int     `toml:"earnings_call_ttl_days" validate:"min=1"`
	AnalystAggregateTTLHours   int     `toml:"analyst_aggregate_ttl_hours" validate:"min=1"`
	AnalystPriceTargetTTLHours int     `toml:"analyst_price_target_ttl_hours" validate:"min=1"`
	AnalystEstimatesTTLHours   int     `toml:"analyst_estimates_ttl_hours" validate:"min=1"`
	AnalystRatingsTTLHours     int     `toml:"analyst_ratings_ttl_hours" validate:"min=1"`
	AnalystGradesTTLHours      int     `toml:"analyst_grades_ttl_hours" validate:"min=1"`
	AnalystExtendedWindowDays  int     `toml:"analyst_extended_window_days" validate:"min=0"`
	MaxFilingsForLLM           int     `toml:"max_filings_for_llm" validate:"min=0"`
	NewsArticleLimit           int     `toml:"news_article_limit" validate:"min=1"`
	MomentumStrongThreshold    float64 `toml:"momentum_strong_threshold"`
	MomentumSevereThreshold    float64 `toml:"momentum_severe_threshold"`
	WeakSignalTargetCap        float64 `toml:"weak_signal_target_cap"`
	WeakSignalTargetFloor      float64 `toml:"weak_signal_target_floor"`
	LLMTargetMaxMultiplier     float64 `toml:"llm_target_max_multiplier"`
	LLMTargetMinMultiplier     float64 `toml:"llm_target_min_multiplier"`
	PriceTargetSampleThreshold int     `toml:"price_target_sample_threshold" validate:"min=1"`
	MacroEventLimit            int     `toml:"macro_event_limit" validate:"min=1"`
}

// LLMConfig contains configuration for the analysis model chain.
// The primary model produces the rating, the fallback model retries
// invalid outputs once, and the repair model fixes malformed JSON.
type LLMConfig struct {
	Model               string          `toml:"model"`
	FallbackModel       string          `toml:"fallback_model"`
	RepairModel         string          `toml:"repair_model"`
	PromptVersion       string          `toml:"prompt_version"`
	MaxCompletionTokens int             `toml:"max_completion_tokens" validate:"min=1"`
	JSONFormatModels    []string        `toml:"json_format_models"` // Model prefixes that accept a JSON response format
	PricingPath         string          `toml:"pricing_path"`       // YAML price table, per-million-token rates
	RequestTimeout      time.Duration   `toml:"request_timeout"`
	OpenAI              OpenAIConfig    `toml:"openai"`
	Gemini              GeminiConfig    `toml:"gemini"`
	Anthropic           AnthropicConfig `toml:"anthropic"`
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey string `toml:"api_key"`
}

// GeminiConfig contains Google Gemini API configuration for summarization and JSON repair
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// AnthropicConfig contains Anthropic API configuration for the fallback chain
type AnthropicConfig struct {
	APIKey string `toml:"api_key"`
}

// BatchConfig contains batch scoring configuration
type BatchConfig struct {
	Concurrency   int `toml:"concurrency" validate:"min=1"`
	PrefetchBatch int `toml:"prefetch_batch" validate:"min=1"` // Tickers per quote prefetch call
}

// PrewarmConfig contains cache prewarm scheduling configuration
type PrewarmConfig struct {
	Enabled       bool     `toml:"enabled"`
	Tickers       []string `toml:"tickers"`
	IntervalHours int      `toml:"interval_hours" validate:"min=1"`
	IncludeLLM    bool     `toml:"include_llm"` // Run the full chain instead of metrics-only
}

// UsageConfig contains LLM spend monitoring configuration.
// When the windowed spend rate exceeds the budget, filing and news
// inputs shrink until the rate falls back under it.
type UsageConfig struct {
	BudgetPerHourUSD float64 `toml:"budget_per_hour_usd"`
	WindowMinutes    int     `toml:"window_minutes" validate:"min=1"`
	DegradedFilings  int     `toml:"degraded_filings" validate:"min=0"`
	DegradedNews     int     `toml:"degraded_news" validate:"min=1"`
}

// EventsConfig contains WebSocket progress stream configuration
type EventsConfig struct {
	Enabled       bool     `toml:"enabled"`
	AllowedEvents []string `toml:"allowed_events"` // Empty allows all event types
}

// ReportConfig contains rendered report output configuration
type ReportConfig struct {
	Dir string `toml:"dir"` // Directory for rendered PDF reports
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in aestimo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Cache: CacheDirConfig{
				Dir: "./data/cache",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Variables: KeysDirConfig{
			Dir: "./keys",
		},
		Upstreams: UpstreamConfig{
			RetryAttempts: 3,
			RetryDelay:    1500 * time.Millisecond,
			FMP: FMPConfig{
				BaseURL:        "https://financialmodelingprep.com/api",
				RequestTimeout: 20 * time.Second,
				RatePerMinute:  300,
			},
			Finnhub: FinnhubConfig{
				BaseURL:        "https://finnhub.io/api/v1",
				RequestTimeout: 15 * time.Second,
			},
			Yahoo: YahooConfig{
				RequestTimeout: 15 * time.Second,
				UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			SEC: SECConfig{
				UserAgent:      "aestimo-research admin@aestimo.local",
				RequestTimeout: 30 * time.Second,
			},
		},
		Research: ResearchConfig{
			RealtimeResultTTLHours:     12,
			HistoricalResultTTLDays:    120,
			FilingSummaryTTLDays:       180,
			NewsCacheTTLHours:          6,
			MomentumCacheTTLHours:      6,
			ThirteenFTTLDays:           30,
			EarningsCallTTLDays:        30,
			AnalystAggregateTTLHours:   12,
			AnalystPriceTargetTTLHours: 24,
			AnalystEstimatesTTLHours:   24,
			AnalystRatingsTTLHours:     24,
			AnalystGradesTTLHours:      24,
			AnalystExtendedWindowDays:  14,
			MaxFilingsForLLM:           2,
			NewsArticleLimit:           4,
			MomentumStrongThreshold:    70,
			MomentumSevereThreshold:    20,
			WeakSignalTargetCap:        1.25,
			WeakSignalTargetFloor:      0.8,
			LLMTargetMaxMultiplier:     1.8,
			LLMTargetMinMultiplier:     0.6,
			PriceTargetSampleThreshold: 3,
			MacroEventLimit:            10,
		},
		LLM: LLMConfig{
			Model:               "gpt-4o-mini",
			FallbackModel:       "claude-haiku-3-5-20241022",
			RepairModel:         "gemini-2.0-flash",
			PromptVersion:       "v1",
			MaxCompletionTokens: 2048,
			JSONFormatModels:    []string{"gpt-4o", "gpt-4.1", "gpt-5"},
			PricingPath:         "./pricing.yaml",
			RequestTimeout:      2 * time.Minute,
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
		},
		Batch: BatchConfig{
			Concurrency:   3,
			PrefetchBatch: 50,
		},
		Prewarm: PrewarmConfig{
			Enabled:       false,
			Tickers:       []string{},
			IntervalHours: 6,
			IncludeLLM:    false,
		},
		Usage: UsageConfig{
			BudgetPerHourUSD: 5.0,
			WindowMinutes:    60,
			DegradedFilings:  1,
			DegradedNews:     2,
		},
		Events: EventsConfig{
			Enabled:       true,
			AllowedEvents: []string{},
		},
		Report: ReportConfig{
			Dir: "./data/reports",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// kvStorage can be nil (key reference replacement is skipped)
func LoadFromFile(kvStorage interfaces.KeyValueStorage, path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles(kvStorage)
	}
	return LoadFromFiles(kvStorage, path)
}

// LoadFromFiles loads configuration from multiple files. Later files override
// earlier files; environment variables override all files.
// kvStorage can be nil (key reference replacement is skipped)
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	// Populate the environment from a .env file when one exists
	_ = godotenv.Load()

	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Perform {key-name} replacement if KV storage is available
	if kvStorage != nil {
		ctx := context.Background()
		kvMap, err := kvStorage.GetAll(ctx)
		if err != nil {
			logger := arbor.NewLogger()
			logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		} else {
			logger := arbor.NewLogger()
			if err := ReplaceInStruct(config, kvMap, logger); err != nil {
				logger.Warn().Err(err).Msg("Failed to replace key references in config")
			}
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configured values against their declared constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config value for %s (constraint %s)", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Research.WeakSignalTargetFloor >= c.Research.WeakSignalTargetCap {
		return fmt.Errorf("weak_signal_target_floor (%.2f) must be below weak_signal_target_cap (%.2f)",
			c.Research.WeakSignalTargetFloor, c.Research.WeakSignalTargetCap)
	}
	if c.Research.LLMTargetMinMultiplier >= c.Research.LLMTargetMaxMultiplier {
		return fmt.Errorf("llm_target_min_multiplier (%.2f) must be below llm_target_max_multiplier (%.2f)",
			c.Research.LLMTargetMinMultiplier, c.Research.LLMTargetMaxMultiplier)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: AESTIMO_ENV, fallback: GO_ENV)
	if env := os.Getenv("AESTIMO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("AESTIMO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("AESTIMO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("AESTIMO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if cacheDir := os.Getenv("AESTIMO_CACHE_DIR"); cacheDir != "" {
		config.Storage.Cache.Dir = cacheDir
	}

	// Logging configuration
	if level := os.Getenv("AESTIMO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("AESTIMO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("AESTIMO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Upstream retry configuration
	if attempts := os.Getenv("AESTIMO_API_RETRY_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Upstreams.RetryAttempts = a
		}
	}
	if delayMs := os.Getenv("AESTIMO_API_RETRY_DELAY_MS"); delayMs != "" {
		if d, err := strconv.Atoi(delayMs); err == nil {
			config.Upstreams.RetryDelay = time.Duration(d) * time.Millisecond
		}
	}

	// Vendor keys: vendor-native names are honored as fallbacks so that
	// existing shell profiles keep working.
	if apiKey := os.Getenv("AESTIMO_FMP_API_KEY"); apiKey != "" {
		config.Upstreams.FMP.APIKey = apiKey
	} else if apiKey := os.Getenv("FMP_API_KEY"); apiKey != "" {
		config.Upstreams.FMP.APIKey = apiKey
	}
	if baseURL := os.Getenv("AESTIMO_FMP_BASE_URL"); baseURL != "" {
		config.Upstreams.FMP.BaseURL = baseURL
	}
	if apiKey := os.Getenv("AESTIMO_FINNHUB_API_KEY"); apiKey != "" {
		config.Upstreams.Finnhub.APIKey = apiKey
	} else if apiKey := os.Getenv("FINNHUB_API_KEY"); apiKey != "" {
		config.Upstreams.Finnhub.APIKey = apiKey
	}
	if baseURL := os.Getenv("AESTIMO_FINNHUB_BASE_URL"); baseURL != "" {
		config.Upstreams.Finnhub.BaseURL = baseURL
	}
	if userAgent := os.Getenv("AESTIMO_SEC_USER_AGENT"); userAgent != "" {
		config.Upstreams.SEC.UserAgent = userAgent
	}

	// Research thresholds
	if v := os.Getenv("AESTIMO_REALTIME_RESULT_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.RealtimeResultTTLHours = n
		}
	}
	if v := os.Getenv("AESTIMO_HISTORICAL_RESULT_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.HistoricalResultTTLDays = n
		}
	}
	if v := os.Getenv("AESTIMO_FILING_SUMMARY_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.FilingSummaryTTLDays = n
		}
	}
	if v := os.Getenv("AESTIMO_NEWS_CACHE_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.NewsCacheTTLHours = n
		}
	}
	if v := os.Getenv("AESTIMO_MOMENTUM_CACHE_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.MomentumCacheTTLHours = n
		}
	}
	if v := os.Getenv("AESTIMO_THIRTEENF_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.ThirteenFTTLDays = n
		}
	}
	if v := os.Getenv("AESTIMO_EARNINGS_CALL_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.EarningsCallTTLDays = n
		}
	}
	if v := os.Getenv("AESTIMO_MAX_FILINGS_FOR_LLM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.MaxFilingsForLLM = n
		}
	}
	if v := os.Getenv("AESTIMO_NEWS_ARTICLE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.NewsArticleLimit = n
		}
	}
	if v := os.Getenv("AESTIMO_MOMENTUM_STRONG_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Research.MomentumStrongThreshold = f
		}
	}
	if v := os.Getenv("AESTIMO_MOMENTUM_SEVERE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Research.MomentumSevereThreshold = f
		}
	}
	if v := os.Getenv("AESTIMO_WEAK_SIGNAL_TARGET_CAP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Research.WeakSignalTargetCap = f
		}
	}
	if v := os.Getenv("AESTIMO_WEAK_SIGNAL_TARGET_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Research.WeakSignalTargetFloor = f
		}
	}
	if v := os.Getenv("AESTIMO_LLM_TARGET_MAX_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Research.LLMTargetMaxMultiplier = f
		}
	}
	if v := os.Getenv("AESTIMO_LLM_TARGET_MIN_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Research.LLMTargetMinMultiplier = f
		}
	}
	if v := os.Getenv("AESTIMO_PRICE_TARGET_SAMPLE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.PriceTargetSampleThreshold = n
		}
	}
	if v := os.Getenv("AESTIMO_MACRO_EVENT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Research.MacroEventLimit = n
		}
	}

	// LLM configuration
	if model := os.Getenv("AESTIMO_LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if model := os.Getenv("AESTIMO_LLM_FALLBACK_MODEL"); model != "" {
		config.LLM.FallbackModel = model
	}
	if model := os.Getenv("AESTIMO_LLM_REPAIR_MODEL"); model != "" {
		config.LLM.RepairModel = model
	}
	if version := os.Getenv("AESTIMO_LLM_PROMPT_VERSION"); version != "" {
		config.LLM.PromptVersion = version
	}
	if maxTokens := os.Getenv("AESTIMO_LLM_MAX_COMPLETION_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.LLM.MaxCompletionTokens = mt
		}
	}
	if models := os.Getenv("AESTIMO_LLM_JSON_FORMAT_MODELS"); models != "" {
		allowed := []string{}
		for _, m := range strings.Split(models, ",") {
			if trimmed := strings.TrimSpace(m); trimmed != "" {
				allowed = append(allowed, trimmed)
			}
		}
		config.LLM.JSONFormatModels = allowed
	}
	if path := os.Getenv("AESTIMO_LLM_PRICING_PATH"); path != "" {
		config.LLM.PricingPath = path
	}
	if apiKey := os.Getenv("AESTIMO_OPENAI_API_KEY"); apiKey != "" {
		config.LLM.OpenAI.APIKey = apiKey
	} else if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("AESTIMO_GEMINI_API_KEY"); apiKey != "" {
		config.LLM.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.LLM.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("AESTIMO_GEMINI_MODEL"); model != "" {
		config.LLM.Gemini.Model = model
	}
	if apiKey := os.Getenv("AESTIMO_ANTHROPIC_API_KEY"); apiKey != "" {
		config.LLM.Anthropic.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.LLM.Anthropic.APIKey = apiKey
	}

	// Batch configuration
	if concurrency := os.Getenv("AESTIMO_BATCH_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Batch.Concurrency = c
		}
	}

	// Prewarm configuration
	if enabled := os.Getenv("AESTIMO_PREWARM_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Prewarm.Enabled = e
		}
	}
	if tickers := os.Getenv("AESTIMO_PREWARM_TICKERS"); tickers != "" {
		parsed := []string{}
		for _, t := range strings.Split(tickers, ",") {
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
		if len(parsed) > 0 {
			config.Prewarm.Tickers = parsed
		}
	}
	if interval := os.Getenv("AESTIMO_PREWARM_INTERVAL_HOURS"); interval != "" {
		if n, err := strconv.Atoi(interval); err == nil {
			config.Prewarm.IntervalHours = n
		}
	}
	if includeLLM := os.Getenv("AESTIMO_PREWARM_INCLUDE_LLM"); includeLLM != "" {
		if b, err := strconv.ParseBool(includeLLM); err == nil {
			config.Prewarm.IncludeLLM = b
		}
	}

	// Usage budget configuration
	if budget := os.Getenv("AESTIMO_USAGE_BUDGET_PER_HOUR_USD"); budget != "" {
		if f, err := strconv.ParseFloat(budget, 64); err == nil {
			config.Usage.BudgetPerHourUSD = f
		}
	}
	if window := os.Getenv("AESTIMO_USAGE_WINDOW_MINUTES"); window != "" {
		if n, err := strconv.Atoi(window); err == nil {
			config.Usage.WindowMinutes = n
		}
	}

	// Variables configuration
	if variablesDir := os.Getenv("AESTIMO_VARIABLES_DIR"); variablesDir != "" {
		config.Variables.Dir = variablesDir
	}

	// Report configuration
	if reportDir := os.Getenv("AESTIMO_REPORT_DIR"); reportDir != "" {
		config.Report.Dir = reportDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> KV store -> config fallback -> error.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	// Environment variables have highest priority; the AESTIMO_ prefixed
	// name is checked before the vendor-native name.
	keyToEnvMapping := map[string][]string{
		"fmp_api_key":       {"AESTIMO_FMP_API_KEY", "FMP_API_KEY"},
		"finnhub_api_key":   {"AESTIMO_FINNHUB_API_KEY", "FINNHUB_API_KEY"},
		"openai_api_key":    {"AESTIMO_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"gemini_api_key":    {"AESTIMO_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"AESTIMO_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// KV store holds file-based variables (medium priority)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
