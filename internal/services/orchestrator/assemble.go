package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/fragments"
	"github.com/ternarybob/aestimo/internal/services/payload"
)

// assemble rebuilds the bundle: concurrent fragment builders with
// selective reuse from the stored copy, derived fields, the LLM step for
// full runs and persistence under the run's variant.
func (s *Service) assemble(ctx context.Context, r *run) (*models.AnalysisBundle, error) {
	limits := s.adaptiveLimits()
	prior := r.storedBundle

	var (
		wg            sync.WaitGroup
		price         *models.PriceMeta
		company       *models.CompanyProfile
		financials    map[string]float64
		momentum      *models.MomentumMetrics
		analyst       *models.AnalystSignals
		institutional *models.InstitutionalSnapshot
		news          *models.NewsBundle
		earnings      *models.EarningsCall
		macro         *models.MacroSnapshot
		filings       []models.FilingDescriptor
		summaries     []models.FilingSummary
	)

	build := func(fragment string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			s.publish(ctx, interfaces.EventFragmentCompleted, r.ticker.Symbol, map[string]interface{}{
				"fragment": fragment,
				"date":     r.key.DateString(),
			})
		}()
	}

	build("price", func() { price = s.fragments.PriceMeta(ctx, r.ticker, r.baseline, r.historical) })
	build("company", func() { company, financials = s.fragments.Company(ctx, r.ticker) })
	build("analyst", func() { analyst = s.fragments.Analyst(ctx, r.ticker, r.baseline) })
	build("institutional", func() { institutional = s.fragments.Institutional(ctx, r.ticker, r.baseline, r.historical) })
	build("earnings_call", func() { earnings = s.fragments.EarningsCall(ctx, r.ticker, r.baseline, r.historical) })
	build("macro", func() { macro = s.fragments.Macro(ctx, r.baseline, r.historical) })

	if s.freshFragment(r, momentumFreshness) && prior.Momentum != nil && prior.Momentum.Error == "" {
		momentum = prior.Momentum
	} else {
		build("momentum", func() { momentum = s.fragments.Momentum(ctx, r.ticker, r.baseline, r.historical) })
	}

	if s.freshFragment(r, newsFreshness) && prior.News != nil && prior.News.Error == "" {
		news = prior.News
	} else {
		build("news", func() { news = s.fragments.News(ctx, r.ticker, limits.NewsLimit) })
	}

	if s.freshFragment(r, r.ttl) && len(prior.Fetched.Filings) > 0 {
		filings = prior.Fetched.Filings
		summaries = prior.PerFilingSummaries
	} else {
		var priorSummaries []models.FilingSummary
		if prior != nil {
			priorSummaries = prior.PerFilingSummaries
		}
		llmEnabled := s.llmEnabled(r.mode)
		build("filings", func() {
			filings, summaries = s.fragments.FilingSummaries(ctx, r.ticker, limits.MaxFilings, priorSummaries, llmEnabled)
		})
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundle := &models.AnalysisBundle{
		Input: models.BundleInput{
			Ticker: r.ticker.Symbol,
			Date:   r.key.DateString(),
			Model:  r.model,
			Mode:   r.mode,
		},
		Fetched: models.FetchedData{
			Filings: filings,
			FinnhubSummary: &models.FinnhubSummary{
				PriceMeta: price,
				Company:   company,
				Metrics:   financials,
			},
		},
		News:               news,
		Momentum:           momentum,
		Institutional:      institutional,
		EarningsCall:       earnings,
		Analyst:            analyst,
		PerFilingSummaries: summaries,
		Macro:              macro,
		GeneratedAt:        time.Now().UTC(),
	}

	s.deriveFields(bundle)

	if err := s.attachInputs(bundle, r); err != nil {
		s.logger.Warn().Str("ticker", r.ticker.Symbol).Err(err).Msg("Failed to compact LLM payload")
	}

	if r.mode.SkipsLLM() {
		s.reuseStoredAnalysis(ctx, bundle, r)
	} else if err := s.runLLM(ctx, bundle, r); err != nil {
		return nil, err
	}

	s.persist(ctx, bundle, r)
	return bundle, nil
}

// deriveFields computes the roll-ups that ride alongside the raw
// fragments: analyst consensus, price-relative valuation, boolean signal
// hints and the guardrail flags that tighten the target-price clamp.
func (s *Service) deriveFields(bundle *models.AnalysisBundle) {
	price := bundle.Fetched.FinnhubSummary.PriceMeta
	if price != nil {
		fragments.ApplyUpside(bundle.Analyst, price.Value)
	}

	bundle.AnalystMetrics = analystMetrics(bundle.Analyst)
	bundle.Valuation = valuation(price, bundle.Momentum, bundle.AnalystMetrics)
	bundle.Guardrails = payload.DeriveGuardrails(bundle.Momentum, bundle.Institutional, s.config.Research.MomentumSevereThreshold)
	bundle.SignalHints = s.signalHints(bundle)
}

// analystMetrics flattens the analyst fragment into the block consumed by
// the LLM payload and the batch CSV columns.
func analystMetrics(analyst *models.AnalystSignals) *models.AnalystMetrics {
	if analyst == nil || analyst.Error != "" {
		return nil
	}

	m := &models.AnalystMetrics{}
	if pt := analyst.PriceTarget; pt != nil {
		m.TargetMean = pt.TargetMean
		m.TargetUpside = pt.UpsidePercent
		m.TargetConfidence = pt.Confidence
		m.PublisherCount = pt.PublisherCount
	}
	if grades := analyst.Grades; grades != nil && grades.Consensus != nil {
		m.RatingConsensus = grades.Consensus.Consensus
	}
	if ratings := analyst.Ratings; ratings != nil {
		m.RatingTrend = ratings.Trend
		if m.RatingConsensus == "" && ratings.Snapshot != nil {
			m.RatingConsensus = ratings.Snapshot.Recommendation
		}
	}
	if m.TargetMean == nil && m.RatingConsensus == "" && m.RatingTrend == "" {
		return nil
	}
	return m
}

// valuation relates the resolved price to analyst targets, the 52-week
// range and the moving averages. MA levels fall back to the momentum
// fragment when the quote did not carry them.
func valuation(price *models.PriceMeta, momentum *models.MomentumMetrics, analyst *models.AnalystMetrics) *models.Valuation {
	if price == nil || price.Value <= 0 {
		return nil
	}

	v := &models.Valuation{Price: price.Value}
	if analyst != nil {
		v.TargetMean = analyst.TargetMean
		v.UpsidePercent = analyst.TargetUpside
	}
	if price.YearHigh != nil && *price.YearHigh > 0 {
		v.DistanceToHigh = ptr((*price.YearHigh - price.Value) / *price.YearHigh * 100)
	}
	if price.YearLow != nil && *price.YearLow > 0 {
		v.DistanceToLow = ptr((price.Value - *price.YearLow) / *price.YearLow * 100)
	}

	ma50, ma200 := price.MA50, price.MA200
	if momentum != nil && momentum.Error == "" {
		if ma50 == nil && momentum.MovingAverages.SMA50 > 0 {
			ma50 = &momentum.MovingAverages.SMA50
		}
		if ma200 == nil && momentum.MovingAverages.SMA200 > 0 {
			ma200 = &momentum.MovingAverages.SMA200
		}
	}
	if ma50 != nil && *ma50 > 0 {
		v.PriceVsMA50 = ptr((price.Value - *ma50) / *ma50 * 100)
	}
	if ma200 != nil && *ma200 > 0 {
		v.PriceVsMA200 = ptr((price.Value - *ma200) / *ma200 * 100)
	}
	return v
}

// signalHints collects the boolean tells surfaced to the LLM prompt.
func (s *Service) signalHints(bundle *models.AnalysisBundle) *models.SignalHints {
	hints := &models.SignalHints{}

	if m := bundle.Momentum; m != nil && m.Error == "" {
		hints.MomentumStrong = m.Score >= s.config.Research.MomentumStrongThreshold
	}
	if g := bundle.Guardrails; g != nil {
		hints.MomentumSevere = g.SevereMomentum
		hints.InstitutionalSell = g.SellingPressure
	}
	if inst := bundle.Institutional; inst != nil && inst.Insider != nil {
		hints.InsiderBuying = inst.Insider.NetShares > 0
	}
	if macro := bundle.Macro; macro != nil && macro.Spread != nil {
		hints.CurveInverted = *macro.Spread < 0
	}
	if news := bundle.News; news != nil && news.Sentiment != nil {
		hints.NewsNegative = news.Sentiment.Label == models.SentimentNegative
	}
	return hints
}

// attachInputs compacts the assembled fragments into the LLM payload and
// keeps it on the bundle for reproducibility and the cross-request cache.
func (s *Service) attachInputs(bundle *models.AnalysisBundle, r *run) error {
	inputs := map[string]interface{}{
		"ticker":           r.ticker.Symbol,
		"baseline_date":    r.key.DateString(),
		"price_meta":       bundle.Fetched.FinnhubSummary.PriceMeta,
		"company":          bundle.Fetched.FinnhubSummary.Company,
		"metrics":          bundle.Fetched.FinnhubSummary.Metrics,
		"momentum":         bundle.Momentum,
		"analyst_signals":  bundle.Analyst,
		"analyst_metrics":  bundle.AnalystMetrics,
		"institutional":    bundle.Institutional,
		"news":             bundle.News,
		"earnings_call":    bundle.EarningsCall,
		"macro":            bundle.Macro,
		"filing_summaries": bundle.PerFilingSummaries,
		"valuation":        bundle.Valuation,
		"signal_hints":     bundle.SignalHints,
		"guardrails":       bundle.Guardrails,
	}

	raw, err := payload.CompactMarshal(inputs)
	if err != nil {
		return fmt.Errorf("compact llm payload: %w", err)
	}
	bundle.Inputs = raw
	return nil
}

// reuseStoredAnalysis copies a previously produced LLM result into an
// LLM-free bundle. The run's own variant is consulted first, then the
// LLM-backed variants for the same key.
func (s *Service) reuseStoredAnalysis(ctx context.Context, bundle *models.AnalysisBundle, r *run) {
	if prior := r.storedBundle; prior != nil && prior.Analysis != nil {
		bundle.Analysis = prior.Analysis
		bundle.LLMUsage = prior.LLMUsage
		bundle.AnalysisModel = prior.AnalysisModel
		return
	}

	for _, variant := range []string{r.model + models.VariantFullSuffix, r.model} {
		record, err := s.results.GetBundle(ctx, r.key.Ticker, r.key.DateString(), variant)
		if err != nil {
			continue
		}
		prior, err := record.DecodeBundle()
		if err != nil || prior.Analysis == nil {
			continue
		}
		bundle.Analysis = prior.Analysis
		bundle.LLMUsage = prior.LLMUsage
		bundle.AnalysisModel = prior.AnalysisModel
		return
	}
}

// runLLM sends the compacted payload for structured analysis. The client
// applies the guardrail clamp on every return path, cache hits included,
// so the options carry the clamp anchors.
func (s *Service) runLLM(ctx context.Context, bundle *models.AnalysisBundle, r *run) error {
	if s.llm == nil || !s.llm.Enabled() {
		return fmt.Errorf("llm analysis requested but no provider key is configured")
	}
	if len(bundle.Inputs) == 0 {
		return fmt.Errorf("llm analysis requested with an empty payload")
	}

	opts := interfaces.AnalyzeOptions{
		Model:      r.model,
		Guardrails: bundle.Guardrails,
	}
	if price := bundle.Fetched.FinnhubSummary.PriceMeta; price != nil {
		opts.CurrentPrice = price.Value
	}
	if bundle.AnalystMetrics != nil {
		opts.TargetConfidence = bundle.AnalystMetrics.TargetConfidence
	}

	result, usage, err := s.llm.Analyze(ctx, bundle.Inputs, opts)
	if err != nil {
		return fmt.Errorf("llm analysis for %s: %w", r.ticker.Symbol, err)
	}

	bundle.Analysis = result
	bundle.LLMUsage = usage
	bundle.AnalysisModel = r.model
	if usage != nil && usage.Model != "" {
		bundle.AnalysisModel = usage.Model
	}
	return nil
}

// persist upserts the finished bundle under the run's variant. Storage
// failures degrade to a warning; the caller still gets the bundle.
func (s *Service) persist(ctx context.Context, bundle *models.AnalysisBundle, r *run) {
	raw, err := json.Marshal(bundle)
	if err != nil {
		s.logger.Warn().Str("key", r.key.String()).Err(err).Msg("Failed to encode analysis bundle")
		return
	}

	record := &models.AnalysisRecord{
		Key:          r.key.String(),
		Ticker:       r.key.Ticker,
		BaselineDate: r.key.DateString(),
		ModelVariant: r.key.ModelVariant,
		Bundle:       raw,
	}
	if err := s.results.PutBundle(ctx, record); err != nil {
		s.logger.Warn().Str("key", record.Key).Err(err).Msg("Failed to persist analysis bundle")
	}
}

func ptr(v float64) *float64 { return &v }
