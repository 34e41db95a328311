package models

import "time"

// RiskMetrics is the duration and rate-sensitivity profile of one bond under
// one valuation mode. Fields that cannot be computed hold NaN.
type RiskMetrics struct {
	// Pass-through identification.
	BondID       string     `json:"bond_id"`
	TitleName    string     `json:"title_name"`
	IndexType    IndexType  `json:"index_type"`
	Coupon       CouponFlag `json:"coupon_flag"`
	BaseDate     time.Time  `json:"base_date"`
	MaturityDate time.Time  `json:"maturity_date"`
	Mode         Mode       `json:"mode"`

	RatePct          Float `json:"rate_pct"` // observed yield, % a.a.
	Price            Float `json:"price"`    // observed unit price
	MacaulayDuration Float `json:"macaulay_duration_years"`
	ModifiedDuration Float `json:"modified_duration_years"`
	DV01             Float `json:"dv01"`
	Impact100Bps     Float `json:"impact_100bps"`     // currency, +100bp parallel shock
	Impact100BpsPct  Float `json:"impact_100bps_pct"` // % of price
	FlowCount        int   `json:"flow_count"`
}

// RiskLevel buckets a portfolio by its average modified duration.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Position is a holding of Quantity units of one bond.
type Position struct {
	BondID   string  `json:"bond_id"`
	Quantity float64 `json:"quantity"`
	// UnitPrice overrides the bond's quoted price when positive (e.g., the
	// price actually paid).
	UnitPrice float64 `json:"unit_price,omitempty"`
}

// PortfolioSummary aggregates value and duration across positions.
type PortfolioSummary struct {
	TotalValue       float64   `json:"total_value"`
	TotalValueText   string    `json:"total_value_text"`
	WeightedDuration Float     `json:"weighted_duration_years"`
	DurationValue    float64   `json:"duration_value"` // Σ D_mod·value
	RiskLevel        RiskLevel `json:"risk_level"`
	Holdings         []Holding `json:"holdings"`
	Skipped          []string  `json:"skipped,omitempty"` // positions without a usable duration
}

// Holding is one valued position with its metrics.
type Holding struct {
	Position
	Value   float64     `json:"value"`
	Metrics RiskMetrics `json:"metrics"`
}

// StressResult is the first-order effect of a parallel rate shock on a portfolio.
type StressResult struct {
	Scenario       string  `json:"scenario"`
	ShockBps       float64 `json:"shock_bps"`
	Impact         Float   `json:"impact"`
	ImpactPct      Float   `json:"impact_pct"`
	ProjectedValue Float   `json:"projected_value"`
	ImpactText     string  `json:"impact_text"`
	ProjectedText  string  `json:"projected_text"`
}
