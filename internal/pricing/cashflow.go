// Package pricing builds approximate cashflow schedules for Tesouro Direto
// bonds and derives price, duration and rate-sensitivity metrics from them.
//
// Coupon-paying bonds (WITH_COUPON) are modelled with a synthetic semi-annual
// schedule at a fixed nominal rate (Engine.SyntheticCouponRate, 6% a.a. by
// default) because the quote data does not carry the contractual coupon.
// The resulting durations are estimates for risk display; they are not a
// pricing guarantee and will not reproduce the Treasury's official PU.
//
// Every function is pure. Numeric failures are reported as errors together
// with a NaN value, so callers can either branch on the error or let NaN flow
// into aggregates they guard themselves.
package pricing

import (
	"fmt"
	"sort"
	"time"

	"github.com/medicech/tesouro-quant/pkg/models"
)

// DefaultSyntheticCouponRate is the nominal annual coupon assumed for
// WITH_COUPON bonds.
const DefaultSyntheticCouponRate = 0.06

const (
	couponsPerYear  = 2
	monthsPerPeriod = 12 / couponsPerYear
)

// Cashflow is one payment of the schedule, expressed as a fraction of face
// value (1.0 is the full principal) at T years from the bond's base date.
type Cashflow struct {
	T      float64   `json:"t"`
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
}

// Engine computes schedules and metrics under a fixed set of assumptions.
// The zero value is not ready for use; call NewEngine.
type Engine struct {
	SyntheticCouponRate float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithSyntheticCouponRate overrides the assumed annual coupon (e.g., 0.06).
func WithSyntheticCouponRate(rate float64) Option {
	return func(e *Engine) { e.SyntheticCouponRate = rate }
}

// NewEngine returns an engine using DefaultSyntheticCouponRate unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{SyntheticCouponRate: DefaultSyntheticCouponRate}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CouponPerPeriod is the semi-annual coupon amount per unit of face value.
func (e *Engine) CouponPerPeriod() float64 {
	return e.SyntheticCouponRate / couponsPerYear
}

// BuildCashflows returns the schedule for bond, sorted by date.
//
// NO_COUPON bonds yield a single bullet flow of 1.0 at maturity. WITH_COUPON
// bonds pay CouponPerPeriod on every date maturity − 6k months (k ≥ 0) that
// falls strictly after the base date, with the principal added to the
// maturity flow. The schedule is anchored to maturity, so the first period
// may be partial.
func (e *Engine) BuildCashflows(bond models.Bond) ([]Cashflow, error) {
	if !bond.Priceable() {
		return nil, fmt.Errorf("%w: %s maturity %s not after base %s", ErrInvalidBond,
			bond.ID, bond.MaturityDate.Format(time.DateOnly), bond.BaseDate.Format(time.DateOnly))
	}

	switch bond.Coupon {
	case models.CouponNone:
		return []Cashflow{bullet(bond)}, nil
	case models.CouponWith:
	default:
		return nil, fmt.Errorf("%w: %s has no coupon flag", ErrInvalidBond, bond.ID)
	}

	coupon := e.CouponPerPeriod()
	var cfs []Cashflow
	for k := 0; ; k++ {
		// Offset from maturity each time, not from the previous date, so a
		// month-end maturity keeps its day: 2028-08-31 steps to 2028-02-29
		// and then 2027-08-31, where chained offsets would stick to the 29th.
		d := addMonths(bond.MaturityDate, -monthsPerPeriod*k)
		if !d.After(bond.BaseDate) {
			break
		}
		t := models.YearFraction(bond.BaseDate, d)
		if t <= 0 {
			continue
		}
		cfs = append(cfs, Cashflow{T: t, Amount: coupon, Date: d})
	}

	if len(cfs) == 0 {
		return []Cashflow{bullet(bond)}, nil
	}

	sort.Slice(cfs, func(i, j int) bool { return cfs[i].Date.Before(cfs[j].Date) })
	cfs[len(cfs)-1].Amount += 1.0
	return cfs, nil
}

func bullet(bond models.Bond) Cashflow {
	return Cashflow{
		T:      models.YearFraction(bond.BaseDate, bond.MaturityDate),
		Amount: 1.0,
		Date:   bond.MaturityDate,
	}
}

// addMonths behaves like Excel's EDATE: the day is clamped to the end of the
// target month instead of overflowing into the next one.
func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}
