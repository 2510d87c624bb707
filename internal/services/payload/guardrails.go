package payload

import (
	"fmt"
	"strings"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

// sellingMarkers are the institutional labels that indicate distribution
// pressure and tighten the clamp band.
var sellingMarkers = []string{models.InstitutionalReducing, "賣出", models.TrendWeak}

// clampedNotice is appended to the rationale so the reader sees the
// number was adjusted.
const clampedNotice = "（目標價超出風險控管區間，已自動調整。）"

// Bounds holds the clamp multipliers around the current price.
type Bounds struct {
	WeakFloor float64 // Flagged band lower bound multiplier
	WeakCap   float64 // Flagged band upper bound multiplier
	MinMult   float64 // Default band lower bound multiplier
	MaxMult   float64 // Default band upper bound multiplier
}

// BoundsFromConfig lifts the clamp multipliers out of the research
// configuration.
func BoundsFromConfig(config *common.ResearchConfig) Bounds {
	return Bounds{
		WeakFloor: config.WeakSignalTargetFloor,
		WeakCap:   config.WeakSignalTargetCap,
		MinMult:   config.LLMTargetMinMultiplier,
		MaxMult:   config.LLMTargetMaxMultiplier,
	}
}

// DeriveGuardrails inspects the momentum and institutional fragments for
// the conditions that tighten the target-price clamp.
func DeriveGuardrails(momentum *models.MomentumMetrics, institutional *models.InstitutionalSnapshot, severeThreshold float64) *models.Guardrails {
	g := &models.Guardrails{}

	if momentum != nil && momentum.BarCount > 0 && momentum.Score <= severeThreshold {
		g.SevereMomentum = true
	}

	if institutional != nil && institutional.Signal != nil {
		label := institutional.Signal.Label
		for _, marker := range sellingMarkers {
			if strings.Contains(label, marker) {
				g.SellingPressure = true
				break
			}
		}
	}

	return g
}

// DefaultBounds mirror the configuration defaults.
func DefaultBounds() Bounds {
	return Bounds{WeakFloor: 0.8, WeakCap: 1.25, MinMult: 0.6, MaxMult: 1.8}
}

// ApplyGuardrails clamps the target price into the band around the
// current price and reports whether it moved. The clamp is skipped when
// the consensus confidence is high, when there is no target, or when no
// usable current price exists. Re-applying to an already clamped result
// is a no-op.
func ApplyGuardrails(result *models.AnalysisResult, currentPrice float64, guardrails *models.Guardrails, confidence string, bounds Bounds) bool {
	if result == nil || result.Action.TargetPrice == nil || currentPrice <= 0 {
		return false
	}
	if strings.EqualFold(confidence, "high") {
		return false
	}

	low := currentPrice * bounds.MinMult
	high := currentPrice * bounds.MaxMult
	if guardrails.Active() {
		low = currentPrice * bounds.WeakFloor
		high = currentPrice * bounds.WeakCap
	}

	target := *result.Action.TargetPrice
	clamped := target
	if clamped < low {
		clamped = low
	}
	if clamped > high {
		clamped = high
	}
	if clamped == target {
		return false
	}

	result.Action.TargetPrice = &clamped
	result.Action.GuardrailNote = fmt.Sprintf("target price clamped from %.2f to %.2f (band %.2f-%.2f)", target, clamped, low, high)
	if result.Action.Rationale != "" && !strings.HasSuffix(result.Action.Rationale, clampedNotice) {
		result.Action.Rationale += clampedNotice
	} else if result.Action.Rationale == "" {
		result.Action.Rationale = clampedNotice
	}

	return true
}
