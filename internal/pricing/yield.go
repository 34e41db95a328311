package pricing

import (
	"errors"
	"math"
)

// Sentinel errors. Functions returning one of them also return NaN.
var (
	ErrInvalidBond      = errors.New("pricing: bond not priceable")
	ErrInvalidYield     = errors.New("pricing: yield at or below -99.9%")
	ErrNoCashflows      = errors.New("pricing: empty cashflow schedule")
	ErrNonPositivePrice = errors.New("pricing: non-positive price")
	ErrNonFinite        = errors.New("pricing: non-finite input")
)

// minYield is the lowest decimal yield for which (1+y)^t is still usable.
const minYield = -0.999

// basisPoint is one basis point in decimal.
const basisPoint = 0.0001

// PriceFromYield discounts cfs at the annually compounded decimal yield y:
//
//	P = Σ amount_i / (1+y)^t_i
func PriceFromYield(cfs []Cashflow, y float64) (float64, error) {
	if len(cfs) == 0 {
		return math.NaN(), ErrNoCashflows
	}
	if math.IsNaN(y) || y <= minYield {
		return math.NaN(), ErrInvalidYield
	}

	var pv float64
	for _, cf := range cfs {
		pv += cf.Amount / math.Pow(1.0+y, cf.T)
	}
	return pv, nil
}

// MacaulayDuration returns the PV-weighted average time of cfs in years.
func MacaulayDuration(cfs []Cashflow, y float64) (float64, error) {
	p, err := PriceFromYield(cfs, y)
	if err != nil {
		return math.NaN(), err
	}
	if !isFinite(p) {
		return math.NaN(), ErrNonFinite
	}
	if p <= 0 {
		return math.NaN(), ErrNonPositivePrice
	}

	var weighted float64
	for _, cf := range cfs {
		weighted += cf.T * cf.Amount / math.Pow(1.0+y, cf.T)
	}
	return weighted / p, nil
}

// ModifiedDuration is MacaulayDuration / (1+y).
func ModifiedDuration(cfs []Cashflow, y float64) (float64, error) {
	dmac, err := MacaulayDuration(cfs, y)
	if err != nil {
		return math.NaN(), err
	}
	return dmac / (1.0 + y), nil
}

// DV01 is the absolute price change for a one basis point yield move.
func DV01(price, dmod float64) (float64, error) {
	if !isFinite(price) || !isFinite(dmod) {
		return math.NaN(), ErrNonFinite
	}
	return math.Abs(dmod * price * basisPoint), nil
}

// ShockImpact is the first-order price change for a parallel shock of
// shockBps basis points. A rate rise (positive shock) lowers the price of a
// positive-duration instrument, so the result is negative.
func ShockImpact(price, dmod, shockBps float64) (float64, error) {
	if !isFinite(price) || !isFinite(dmod) || !isFinite(shockBps) {
		return math.NaN(), ErrNonFinite
	}
	return -dmod * price * shockBps * basisPoint, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
