package portfolio

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/medicech/tesouro-quant/pkg/models"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// Scenario is a named parallel rate shock.
type Scenario struct {
	Name     string  `json:"name"`
	ShockBps float64 `json:"shock_bps"`
}

// Scenarios are the predefined stress tests, from the largest cut to the largest hike.
var Scenarios = []Scenario{
	{Name: "Corte agressivo da Selic (-2%)", ShockBps: -200},
	{Name: "Otimismo: queda de juros (-1%)", ShockBps: -100},
	{Name: "Risco fiscal: juros sobem (+1%)", ShockBps: 100},
	{Name: "Pânico de mercado: juros explodem (+2%)", ShockBps: 200},
}

var tenThousand = decimal.NewFromInt(10000)

// Stress applies a parallel shock of bps basis points to the portfolio using
// the duration approximation: impact = -Σ(D_mod·value)·bps/10000.
// Non-finite inputs yield an undefined (NaN) impact.
func Stress(summary *models.PortfolioSummary, name string, bps float64) models.StressResult {
	if name == "" {
		name = fmt.Sprintf("Personalizado (%+.0f bps)", bps)
	}
	if !finite(bps) || !finite(summary.TotalValue) || !finite(summary.DurationValue) {
		return models.StressResult{
			Scenario:       name,
			ShockBps:       bps,
			Impact:         models.NaN(),
			ImpactPct:      models.NaN(),
			ProjectedValue: models.NaN(),
			ImpactText:     "-",
			ProjectedText:  "-",
		}
	}
	total := decimal.NewFromFloat(summary.TotalValue)
	impact := decimal.NewFromFloat(summary.DurationValue).
		Mul(decimal.NewFromFloat(bps)).
		Div(tenThousand).
		Neg()
	projected := total.Add(impact)

	res := models.StressResult{
		Scenario:       name,
		ShockBps:       bps,
		Impact:         models.Float(impact.Round(2).InexactFloat64()),
		ImpactPct:      models.NaN(),
		ProjectedValue: models.Float(projected.Round(2).InexactFloat64()),
		ImpactText:     utils.FormatBRLDecimal(impact),
		ProjectedText:  utils.FormatBRLDecimal(projected),
	}
	if total.IsPositive() {
		res.ImpactPct = models.Float(impact.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64())
	}
	return res
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// StressAll runs every predefined scenario.
func StressAll(summary *models.PortfolioSummary) []models.StressResult {
	out := make([]models.StressResult, 0, len(Scenarios))
	for _, s := range Scenarios {
		out = append(out, Stress(summary, s.Name, s.ShockBps))
	}
	return out
}
