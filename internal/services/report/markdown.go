// Package report renders a stored analysis bundle as a deliverable
// research note: markdown, a standalone HTML page or a PDF.
package report

import (
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Renderer builds research notes. One instance serves all formats.
type Renderer struct {
	logger arbor.ILogger
}

var _ interfaces.ReportRenderer = (*Renderer)(nil)

// NewRenderer returns a renderer logging through the given logger.
func NewRenderer(logger arbor.ILogger) *Renderer {
	return &Renderer{logger: logger}
}

// RenderMarkdown builds the research note. Sections cover only the
// fragments the bundle carries; a metrics-only bundle renders without an
// action section body.
func (r *Renderer) RenderMarkdown(bundle *models.AnalysisBundle) ([]byte, error) {
	if bundle == nil || bundle.Input.Ticker == "" {
		return nil, fmt.Errorf("no bundle to render")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s Research Note\n\n", bundle.Input.Ticker)
	bullet(&b, "Baseline", bundle.Input.Date)
	if bundle.Input.Mode != "" {
		bullet(&b, "Mode", string(bundle.Input.Mode))
	}
	if model := bundle.AnalysisModel; model != "" {
		bullet(&b, "Model", model)
	} else if bundle.Input.Model != "" {
		bullet(&b, "Model", bundle.Input.Model)
	}
	if !bundle.GeneratedAt.IsZero() {
		bullet(&b, "Generated", bundle.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}

	r.writeAction(&b, bundle)
	r.writeValuation(&b, bundle)
	r.writeMomentum(&b, bundle.Momentum)
	r.writeAnalyst(&b, bundle.Analyst)
	r.writeInstitutional(&b, bundle.Institutional)
	r.writeNews(&b, bundle.News)
	r.writeEarningsCall(&b, bundle.EarningsCall)
	r.writeFilings(&b, bundle.PerFilingSummaries)
	r.writeMacro(&b, bundle.Macro)
	r.writeSignals(&b, bundle)
	r.writeFooter(&b, bundle)

	return []byte(b.String()), nil
}

func (r *Renderer) writeAction(b *strings.Builder, bundle *models.AnalysisBundle) {
	section(b, "Action")
	analysis := bundle.Analysis
	if analysis == nil {
		b.WriteString("Metrics-only run; no model action recorded.\n")
		return
	}

	bullet(b, "Rating", analysis.Action.Rating)
	if analysis.Action.TargetPrice != nil {
		bullet(b, "Target price", money(*analysis.Action.TargetPrice))
	}
	if analysis.Action.Confidence != "" {
		bullet(b, "Confidence", analysis.Action.Confidence)
	}
	if analysis.Segment != "" {
		bullet(b, "Segment", analysis.Segment)
	}
	if analysis.QualityScore != nil {
		bullet(b, "Quality score", fmt.Sprintf("%.1f", *analysis.QualityScore))
	}
	if note := analysis.Action.GuardrailNote; note != "" {
		fmt.Fprintf(b, "\n*%s*\n", note)
	}
	if analysis.Action.Rationale != "" {
		fmt.Fprintf(b, "\n> %s\n", analysis.Action.Rationale)
	}
	if analysis.Thesis != "" {
		fmt.Fprintf(b, "\n%s\n", analysis.Thesis)
	}
	writeList(b, "Highlights", analysis.Highlights)
	writeList(b, "Risks", analysis.Risks)
}

func (r *Renderer) writeValuation(b *strings.Builder, bundle *models.AnalysisBundle) {
	v := bundle.Valuation
	meta := priceMeta(bundle)
	if v == nil && meta == nil {
		return
	}

	section(b, "Valuation")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	if meta != nil && meta.Value > 0 {
		detail := meta.Kind
		if meta.Source != "" {
			detail = meta.Source
		}
		fmt.Fprintf(b, "| Current price | %s (%s) |\n", money(meta.Value), detail)
	}
	if v != nil {
		tableRow(b, "Analyst target mean", v.TargetMean, money)
		tableRow(b, "Upside", v.UpsidePercent, signedPct)
		tableRow(b, "Below 52-week high", v.DistanceToHigh, pct)
		tableRow(b, "Above 52-week low", v.DistanceToLow, pct)
		tableRow(b, "vs MA50", v.PriceVsMA50, signedPct)
		tableRow(b, "vs MA200", v.PriceVsMA200, signedPct)
	}
}

func (r *Renderer) writeMomentum(b *strings.Builder, m *models.MomentumMetrics) {
	if m == nil {
		return
	}
	section(b, "Momentum")
	if m.Error != "" {
		fmt.Fprintf(b, "Unavailable: %s\n", m.Error)
		return
	}

	trend := m.Trend
	if m.TrendTag != "" {
		trend = fmt.Sprintf("%s (%s)", m.Trend, m.TrendTag)
	}
	bullet(b, "Score", fmt.Sprintf("%.1f", m.Score))
	bullet(b, "Trend", trend)
	bullet(b, "Returns", fmt.Sprintf("3m %s, 6m %s, 12m %s",
		signedPct(m.Returns.M3*100), signedPct(m.Returns.M6*100), signedPct(m.Returns.M12*100)))
	bullet(b, "RSI(14)", fmt.Sprintf("%.1f", m.RSI14))
	bullet(b, "ATR(14)", fmt.Sprintf("%.2f", m.ATR14))
	bullet(b, "Volume ratio", fmt.Sprintf("%.2f", m.VolumeRatio))
	bullet(b, "Moving averages", fmt.Sprintf("SMA20 %s, SMA50 %s, SMA200 %s",
		money(m.MovingAverages.SMA20), money(m.MovingAverages.SMA50), money(m.MovingAverages.SMA200)))
	if m.ETF != nil && m.ETF.Symbol != "" {
		bullet(b, "Sector proxy", m.ETF.Symbol)
	}
	if m.ReferenceDate != "" {
		bullet(b, "Reference session", m.ReferenceDate)
	}
}

func (r *Renderer) writeAnalyst(b *strings.Builder, analyst *models.AnalystSignals) {
	if analyst == nil {
		return
	}
	section(b, "Analyst Coverage")
	if analyst.Error != "" {
		fmt.Fprintf(b, "Unavailable: %s\n", analyst.Error)
		return
	}

	if pt := analyst.PriceTarget; pt != nil {
		if pt.TargetMean != nil {
			value := money(*pt.TargetMean)
			if pt.TargetLow != nil && pt.TargetHigh != nil {
				value = fmt.Sprintf("%s (range %s to %s)", value, money(*pt.TargetLow), money(*pt.TargetHigh))
			}
			bullet(b, "Price target", value)
		}
		if pt.UpsidePercent != nil {
			bullet(b, "Implied upside", signedPct(*pt.UpsidePercent))
		}
		if pt.PublisherCount > 0 {
			confidence := pt.Confidence
			if confidence == "" {
				confidence = "n/a"
			}
			bullet(b, "Publishers", fmt.Sprintf("%d (%s confidence)", pt.PublisherCount, confidence))
		}
	}
	if grades := analyst.Grades; grades != nil && grades.Consensus != nil && grades.Consensus.Consensus != "" {
		bullet(b, "Consensus", grades.Consensus.Consensus)
	}
	if ratings := analyst.Ratings; ratings != nil {
		if ratings.Snapshot != nil && ratings.Snapshot.Rating != "" {
			bullet(b, "Rating", ratings.Snapshot.Rating)
		}
		if ratings.Trend != "" {
			bullet(b, "Rating trend", ratings.Trend)
		}
	}
	if grades := analyst.Grades; grades != nil && len(grades.RecentActions) > 0 {
		b.WriteString("\n")
		for _, action := range grades.RecentActions {
			detail := action.NewGrade
			if action.PreviousGrade != "" {
				detail = fmt.Sprintf("%s from %s", action.NewGrade, action.PreviousGrade)
			}
			fmt.Fprintf(b, "- %s %s: %s (%s)\n", action.Date, action.Company, detail, action.Action)
		}
	}
}

func (r *Renderer) writeInstitutional(b *strings.Builder, inst *models.InstitutionalSnapshot) {
	if inst == nil {
		return
	}
	section(b, "Institutional Activity")
	if inst.Error != "" {
		fmt.Fprintf(b, "Unavailable: %s\n", inst.Error)
		return
	}

	if inst.Signal != nil {
		bullet(b, "13F flow", fmt.Sprintf("%s (net %s shares)", inst.Signal.Label, thousands(inst.Signal.NetShares)))
	}
	if inst.AsOf != "" {
		bullet(b, "As of quarter end", inst.AsOf)
	}
	if len(inst.Top) > 0 {
		b.WriteString("\n| Holder | Shares | Change |\n|---|---|---|\n")
		for _, row := range inst.Top {
			fmt.Fprintf(b, "| %s | %s | %s |\n", row.Holder, thousands(row.Shares), thousands(row.ChangeShares))
		}
	}
	if insider := inst.Insider; insider != nil {
		bullet(b, "Insider activity", fmt.Sprintf("%s (%d buys, %d sells, net %s shares)",
			insider.Label, insider.BuyCount, insider.SellCount, thousands(insider.NetShares)))
	}
}

func (r *Renderer) writeNews(b *strings.Builder, news *models.NewsBundle) {
	if news == nil {
		return
	}
	section(b, "News")
	if news.Error != "" {
		fmt.Fprintf(b, "Unavailable: %s\n", news.Error)
		return
	}

	if s := news.Sentiment; s != nil {
		bullet(b, "Sentiment", s.Label)
		if s.Summary != "" {
			fmt.Fprintf(b, "\n%s\n", s.Summary)
		}
	}
	if len(news.Articles) > 0 {
		b.WriteString("\n")
		for _, article := range news.Articles {
			date := ""
			if !article.PublishedAt.IsZero() {
				date = article.PublishedAt.UTC().Format("2006-01-02") + " "
			}
			fmt.Fprintf(b, "- %s%s (%s)\n", date, article.Title, article.Source)
		}
	}
}

func (r *Renderer) writeEarningsCall(b *strings.Builder, call *models.EarningsCall) {
	if call == nil || call.Status == models.EarningsCallMissing {
		return
	}
	section(b, "Earnings Call")
	if call.Error != "" {
		fmt.Fprintf(b, "Unavailable: %s\n", call.Error)
		return
	}

	if call.Quarter > 0 && call.Year > 0 {
		bullet(b, "Quarter", fmt.Sprintf("Q%d %d", call.Quarter, call.Year))
	}
	if call.Summary != "" {
		fmt.Fprintf(b, "\n%s\n", call.Summary)
	}
	writeList(b, "Key points", call.Bullets)
}

func (r *Renderer) writeFilings(b *strings.Builder, summaries []models.FilingSummary) {
	if len(summaries) == 0 {
		return
	}
	section(b, "Filings")
	for _, summary := range summaries {
		fmt.Fprintf(b, "### %s filed %s\n\n", summary.Form, summary.FilingDate)
		switch {
		case summary.Error != "":
			fmt.Fprintf(b, "Unavailable: %s\n\n", summary.Error)
		case summary.MDASummary != "":
			fmt.Fprintf(b, "%s\n\n", summary.MDASummary)
		}
	}
}

func (r *Renderer) writeMacro(b *strings.Builder, macro *models.MacroSnapshot) {
	if macro == nil {
		return
	}
	section(b, "Macro Context")
	if macro.Error != "" {
		fmt.Fprintf(b, "Unavailable: %s\n", macro.Error)
		return
	}

	if macro.Yield10Y != nil && macro.Yield2Y != nil {
		bullet(b, "Treasury yields", fmt.Sprintf("10Y %.2f%%, 2Y %.2f%%", *macro.Yield10Y, *macro.Yield2Y))
	}
	if macro.Spread != nil {
		state := "normal"
		if *macro.Spread < 0 {
			state = "inverted"
		}
		bullet(b, "2s10s spread", fmt.Sprintf("%.2f (%s)", *macro.Spread, state))
	}
	if macro.RiskPremium != nil {
		bullet(b, "Market risk premium", fmt.Sprintf("%.2f%%", *macro.RiskPremium))
	}
	if len(macro.Events) > 0 {
		bullet(b, "Calendar events in window", fmt.Sprintf("%d", len(macro.Events)))
	}
}

func (r *Renderer) writeSignals(b *strings.Builder, bundle *models.AnalysisBundle) {
	hints := bundle.SignalHints
	guardrails := bundle.Guardrails
	if hints == nil && (guardrails == nil || !guardrails.Active()) {
		return
	}

	section(b, "Signals")
	if guardrails != nil && guardrails.Active() {
		flags := make([]string, 0, 2)
		if guardrails.SevereMomentum {
			flags = append(flags, "severe momentum")
		}
		if guardrails.SellingPressure {
			flags = append(flags, "institutional selling pressure")
		}
		bullet(b, "Guardrails", strings.Join(flags, ", "))
	}
	if hints != nil {
		active := make([]string, 0, 6)
		for _, hint := range []struct {
			on   bool
			name string
		}{
			{hints.MomentumStrong, "momentum strong"},
			{hints.MomentumSevere, "momentum severe"},
			{hints.InstitutionalSell, "institutional selling"},
			{hints.InsiderBuying, "insider buying"},
			{hints.CurveInverted, "yield curve inverted"},
			{hints.NewsNegative, "news negative"},
		} {
			if hint.on {
				active = append(active, hint.name)
			}
		}
		if len(active) > 0 {
			bullet(b, "Hints", strings.Join(active, ", "))
		}
	}
}

func (r *Renderer) writeFooter(b *strings.Builder, bundle *models.AnalysisBundle) {
	usage := bundle.LLMUsage
	if usage == nil {
		return
	}
	b.WriteString("\n---\n\n")
	fmt.Fprintf(b, "Model %s used %d tokens", usage.Model, usage.TotalTokens)
	if usage.TotalCost > 0 {
		fmt.Fprintf(b, " (%.4f USD)", usage.TotalCost)
	}
	if usage.Cached {
		b.WriteString(", answered from cache")
	}
	b.WriteString(".\n")
}

func priceMeta(bundle *models.AnalysisBundle) *models.PriceMeta {
	if bundle.Fetched.FinnhubSummary == nil {
		return nil
	}
	return bundle.Fetched.FinnhubSummary.PriceMeta
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n## %s\n\n", title)
}

func bullet(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "- **%s**: %s\n", label, value)
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s**\n\n", label)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func tableRow(b *strings.Builder, label string, value *float64, format func(float64) string) {
	if value == nil {
		return
	}
	fmt.Fprintf(b, "| %s | %s |\n", label, format(*value))
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }

func pct(v float64) string { return fmt.Sprintf("%.1f%%", v) }

func signedPct(v float64) string { return fmt.Sprintf("%+.1f%%", v) }

func thousands(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := fmt.Sprintf("%d", v)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return sign + s
}
