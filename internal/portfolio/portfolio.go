// Package portfolio values a set of Tesouro Direto positions and measures
// their aggregate rate risk: value-weighted modified duration, risk level
// and first-order stress scenarios.
package portfolio

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/medicech/tesouro-quant/internal/config"
	"github.com/medicech/tesouro-quant/internal/pricing"
	"github.com/medicech/tesouro-quant/pkg/models"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

var (
	// ErrEmptyPortfolio is returned when there are no positions to value.
	ErrEmptyPortfolio = errors.New("portfolio: no positions")
	// ErrUnknownBond is returned when a position references a bond missing from the catalog.
	ErrUnknownBond = errors.New("portfolio: unknown bond")
	// ErrInvalidQuantity is returned for non-positive or non-finite quantities.
	ErrInvalidQuantity = errors.New("portfolio: quantity must be positive")
)

// Default modified-duration thresholds, in years.
const (
	DefaultLowRiskBelow    = 2.0
	DefaultMediumRiskBelow = 6.0
)

// Analyzer values positions against a bond catalog.
type Analyzer struct {
	engine          *pricing.Engine
	lowRiskBelow    float64
	mediumRiskBelow float64
}

// NewAnalyzer creates an analyzer using engine for risk metrics and the
// configured risk thresholds. Zero thresholds fall back to 2 and 6 years.
func NewAnalyzer(engine *pricing.Engine, cfg config.PortfolioConfig) *Analyzer {
	if engine == nil {
		engine = pricing.NewEngine()
	}
	a := &Analyzer{
		engine:          engine,
		lowRiskBelow:    cfg.LowRiskBelow,
		mediumRiskBelow: cfg.MediumRiskBelow,
	}
	if a.lowRiskBelow <= 0 && a.mediumRiskBelow <= 0 {
		a.lowRiskBelow, a.mediumRiskBelow = DefaultLowRiskBelow, DefaultMediumRiskBelow
	}
	return a
}

// Summary values every position under mode. Each position is priced at its
// UnitPrice when positive, otherwise at the bond's quoted price. Positions
// whose modified duration cannot be computed still count toward the total
// value but are left out of the weighted duration and listed in Skipped.
func (a *Analyzer) Summary(bonds []models.Bond, positions []models.Position, mode models.Mode) (*models.PortfolioSummary, error) {
	if len(positions) == 0 {
		return nil, ErrEmptyPortfolio
	}
	if mode == "" {
		mode = models.ModeBuy
	}
	byID := make(map[string]models.Bond, len(bonds))
	for _, b := range bonds {
		byID[b.ID] = b
	}

	total, durValue, durWeight := decimal.Zero, decimal.Zero, decimal.Zero
	holdings := make([]models.Holding, 0, len(positions))
	var skipped []string
	for _, p := range positions {
		if p.Quantity <= 0 || math.IsNaN(p.Quantity) || math.IsInf(p.Quantity, 0) {
			return nil, fmt.Errorf("%w: %s has %v", ErrInvalidQuantity, p.BondID, p.Quantity)
		}
		bond, ok := byID[p.BondID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBond, p.BondID)
		}

		metrics := a.engine.ComputeDurationMetrics(bond, mode)
		unit := p.UnitPrice
		if unit <= 0 {
			unit = bond.Price(mode)
		}
		if math.IsNaN(unit) || math.IsInf(unit, 0) || unit <= 0 {
			skipped = append(skipped, p.BondID)
			holdings = append(holdings, models.Holding{Position: p, Metrics: metrics})
			continue
		}

		value := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(unit))
		total = total.Add(value)
		holdings = append(holdings, models.Holding{Position: p, Value: value.InexactFloat64(), Metrics: metrics})

		if !metrics.ModifiedDuration.Valid() {
			skipped = append(skipped, p.BondID)
			continue
		}
		durValue = durValue.Add(value.Mul(decimal.NewFromFloat(float64(metrics.ModifiedDuration))))
		durWeight = durWeight.Add(value)
	}

	summary := &models.PortfolioSummary{
		TotalValue:       total.Round(2).InexactFloat64(),
		TotalValueText:   utils.FormatBRLDecimal(total),
		WeightedDuration: models.NaN(),
		DurationValue:    durValue.InexactFloat64(),
		Holdings:         holdings,
		Skipped:          skipped,
	}
	if durWeight.IsPositive() {
		summary.WeightedDuration = models.Float(durValue.Div(durWeight).InexactFloat64())
	}
	summary.RiskLevel = a.Classify(float64(summary.WeightedDuration))
	return summary, nil
}

// Classify buckets a modified duration: LOW below the low threshold, MEDIUM
// below the medium threshold, HIGH otherwise. NaN has no level.
func (a *Analyzer) Classify(duration float64) models.RiskLevel {
	switch {
	case math.IsNaN(duration):
		return ""
	case duration < a.lowRiskBelow:
		return models.RiskLow
	case duration < a.mediumRiskBelow:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}
