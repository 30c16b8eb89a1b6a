// Package risk converts trading signals into bounded position sizes.
// Sizing is a pure function of the signal, the current price and the
// account equity; the manager holds only the configured limits.
package risk

import (
	"math"

	"github.com/rs/zerolog/log"
)

// Manager applies the configured per-trade risk limits
type Manager struct {
	maxRiskPercent float64 // cap on notional as % of equity, e.g. 2.0
	minConfidence  float64 // confidence floor (0-100) below which size is zero
}

// NewManager creates a risk manager with the given limits. Percentages
// are expressed as 2.0 for 2%.
func NewManager(maxRiskPercent, minConfidence float64) *Manager {
	return &Manager{
		maxRiskPercent: maxRiskPercent,
		minConfidence:  minConfidence,
	}
}

// CalculatePositionSize returns the number of units to trade for a signal.
// Confidence is on a 0-100 scale. The returned quantity's notional value
// (quantity * currentPrice) never exceeds maxRiskPercent of equity; low
// confidence scales the size down proportionally and confidence at or
// below the floor yields zero. Invalid inputs fail safely to zero rather
// than raising.
func (m *Manager) CalculatePositionSize(ticker string, direction int, confidence, currentPrice, equity float64) float64 {
	if currentPrice <= 0 {
		log.Warn().
			Str("ticker", ticker).
			Float64("current_price", currentPrice).
			Msg("position size requested with non-positive price")
		return 0
	}
	if confidence < 0 || confidence > 100 {
		log.Warn().
			Str("ticker", ticker).
			Float64("confidence", confidence).
			Msg("position size requested with out-of-range confidence")
		return 0
	}
	if equity <= 0 {
		return 0
	}
	if confidence <= m.minConfidence {
		log.Debug().
			Str("ticker", ticker).
			Float64("confidence", confidence).
			Float64("floor", m.minConfidence).
			Msg("confidence below floor, sizing to zero")
		return 0
	}

	riskCapital := equity * m.maxRiskPercent / 100.0
	scaled := riskCapital * confidence / 100.0

	quantity := math.Floor(scaled / currentPrice)
	if quantity < 0 {
		return 0
	}

	log.Debug().
		Str("ticker", ticker).
		Int("direction", direction).
		Float64("confidence", confidence).
		Float64("equity", equity).
		Float64("quantity", quantity).
		Msg("calculated position size")

	return quantity
}

// MaxRiskPercent returns the configured per-trade risk cap
func (m *Manager) MaxRiskPercent() float64 { return m.maxRiskPercent }

// MinConfidence returns the configured confidence floor
func (m *Manager) MinConfidence() float64 { return m.minConfidence }
