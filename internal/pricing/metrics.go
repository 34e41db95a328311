package pricing

import "github.com/medicech/tesouro-quant/pkg/models"

// StandardShockBps is the parallel shock reported in RiskMetrics.
const StandardShockBps = 100.0

// ComputeDurationMetrics prices bond under mode and returns its risk profile.
// It never fails: fields that cannot be computed are NaN, so aggregations over
// many bonds must skip non-finite durations themselves.
func (e *Engine) ComputeDurationMetrics(bond models.Bond, mode models.Mode) models.RiskMetrics {
	if mode == "" {
		mode = models.ModeBuy
	}
	ratePct := bond.Rate(mode)
	price := bond.Price(mode)

	m := models.RiskMetrics{
		BondID:           bond.ID,
		TitleName:        bond.TitleName,
		IndexType:        bond.IndexType,
		Coupon:           bond.Coupon,
		BaseDate:         bond.BaseDate,
		MaturityDate:     bond.MaturityDate,
		Mode:             mode,
		RatePct:          models.Float(ratePct),
		Price:            models.Float(price),
		MacaulayDuration: models.NaN(),
		ModifiedDuration: models.NaN(),
		DV01:             models.NaN(),
		Impact100Bps:     models.NaN(),
		Impact100BpsPct:  models.NaN(),
	}

	cfs, err := e.BuildCashflows(bond)
	if err != nil {
		return m
	}
	m.FlowCount = len(cfs)

	y := ratePct / 100.0
	dmac, err := MacaulayDuration(cfs, y)
	if err != nil {
		return m
	}
	m.MacaulayDuration = models.Float(dmac)
	dmod := dmac / (1.0 + y)
	m.ModifiedDuration = models.Float(dmod)

	if dv01, err := DV01(price, dmod); err == nil {
		m.DV01 = models.Float(dv01)
	}
	impact, err := ShockImpact(price, dmod, StandardShockBps)
	if err != nil {
		return m
	}
	m.Impact100Bps = models.Float(impact)
	if price != 0 {
		if pct := impact / price * 100.0; isFinite(pct) {
			m.Impact100BpsPct = models.Float(pct)
		}
	}
	return m
}

// Metrics computes ComputeDurationMetrics for every bond, preserving order.
func (e *Engine) Metrics(bonds []models.Bond, mode models.Mode) []models.RiskMetrics {
	out := make([]models.RiskMetrics, len(bonds))
	for i, b := range bonds {
		out[i] = e.ComputeDurationMetrics(b, mode)
	}
	return out
}

// Valid reports whether m carries a usable modified duration and price.
func Valid(m models.RiskMetrics) bool {
	return m.ModifiedDuration.Valid() && m.Price.Valid() && m.Price > 0
}
