// Package models defines the core data structures used throughout tesouro-quant.
package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DaysPerYear is the Actual/365.25 year length used for tenors and cashflow times.
const DaysPerYear = 365.25

// IndexType is the rate-indexation regime of a Tesouro Direto bond.
type IndexType string

const (
	IndexIPCA      IndexType = "IPCA"      // real rate over IPCA inflation
	IndexSELIC     IndexType = "SELIC"     // spread over the Selic rate
	IndexPrefixado IndexType = "PREFIXADO" // nominal fixed rate
	IndexOther     IndexType = "OTHER"
)

// ParseIndexType accepts the canonical names plus common aliases ("PRE", "OUTROS").
func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IPCA", "IPCA+":
		return IndexIPCA, nil
	case "SELIC":
		return IndexSELIC, nil
	case "PREFIXADO", "PRE", "PREFIX":
		return IndexPrefixado, nil
	case "OTHER", "OUTROS":
		return IndexOther, nil
	}
	return "", fmt.Errorf("unknown index type %q", s)
}

// CouponFlag tells whether a bond pays semi-annual interest before maturity.
// The zero value means the flag is unset.
type CouponFlag string

const (
	CouponWith CouponFlag = "WITH_COUPON"
	CouponNone CouponFlag = "NO_COUPON"
)

// ParseCouponFlag accepts the canonical names and the Tesouro labels
// ("COM CUPOM", "SEM CUPOM").
func ParseCouponFlag(s string) (CouponFlag, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WITH_COUPON", "COM CUPOM", "JS":
		return CouponWith, nil
	case "NO_COUPON", "SEM CUPOM", "STD":
		return CouponNone, nil
	}
	return "", fmt.Errorf("unknown coupon flag %q", s)
}

// Mode selects which quote side (rate/price columns) a computation uses.
type Mode string

const (
	ModeBuy  Mode = "BUY"
	ModeSell Mode = "SELL"
)

// ParseMode accepts "buy"/"sell" and the Portuguese "compra"/"venda".
// An empty string defaults to ModeBuy.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "BUY", "COMPRA":
		return ModeBuy, nil
	case "SELL", "VENDA":
		return ModeSell, nil
	}
	return "", fmt.Errorf("unknown mode %q (want BUY or SELL)", s)
}

// Bond is one tradable Tesouro Direto instrument as quoted on BaseDate.
type Bond struct {
	ID            string     `json:"id"`         // e.g., "IPCA_JS_2035"
	TitleName     string     `json:"title_name"` // e.g., "Tesouro IPCA+ com Juros Semestrais 2035"
	IndexType     IndexType  `json:"index_type"`
	Coupon        CouponFlag `json:"coupon_flag"`
	BaseDate      time.Time  `json:"base_date"`
	MaturityDate  time.Time  `json:"maturity_date"`
	BuyRate       Float      `json:"buy_rate"`  // % a.a.
	SellRate      Float      `json:"sell_rate"` // % a.a.
	BuyPrice      Float      `json:"buy_price"`
	SellPrice     Float      `json:"sell_price"`
	BasePrice     Float      `json:"base_price"`
	MinInvestment Float      `json:"min_investment"`
}

// Rate returns the annual percentage rate for the given mode.
func (b Bond) Rate(mode Mode) float64 {
	if mode == ModeSell {
		return float64(b.SellRate)
	}
	return float64(b.BuyRate)
}

// Price returns the unit price for the given mode.
func (b Bond) Price(mode Mode) float64 {
	if mode == ModeSell {
		return float64(b.SellPrice)
	}
	return float64(b.BuyPrice)
}

// TenorYears is the time from BaseDate to MaturityDate in Actual/365.25 years.
// It is NaN when either date is missing.
func (b Bond) TenorYears() float64 {
	if b.BaseDate.IsZero() || b.MaturityDate.IsZero() {
		return math.NaN()
	}
	return YearFraction(b.BaseDate, b.MaturityDate)
}

// Priceable reports whether the bond satisfies maturity > base.
func (b Bond) Priceable() bool {
	return !b.BaseDate.IsZero() && b.MaturityDate.After(b.BaseDate)
}

// YearFraction returns whole calendar days between from and to divided by 365.25.
func YearFraction(from, to time.Time) float64 {
	return float64(DaysBetween(from, to)) / DaysPerYear
}

// DaysBetween counts calendar days from a to b, ignoring time of day and zone.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(db.Sub(da).Hours() / 24))
}

// FilterBonds returns the bonds for which keep returns true, in input order.
func FilterBonds(bonds []Bond, keep func(Bond) bool) []Bond {
	out := make([]Bond, 0, len(bonds))
	for _, b := range bonds {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// ByIndex is a FilterBonds predicate matching one index type and, when
// coupon is non-empty, one coupon flag.
func ByIndex(index IndexType, coupon CouponFlag) func(Bond) bool {
	return func(b Bond) bool {
		if b.IndexType != index {
			return false
		}
		return coupon == "" || b.Coupon == coupon
	}
}
