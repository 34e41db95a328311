package termstructure

import (
	"errors"
	"fmt"
	"math"

	"github.com/medicech/tesouro-quant/pkg/models"
)

// MinVertices is the smallest vertex count for which a curve is treated as
// meaningful.
const MinVertices = 3

// minBreakevenBonds is the minimum number of bonds on each side of a
// breakeven computation.
const minBreakevenBonds = 2

// Breakeven window, in years.
const (
	DefaultBreakevenMin = 1.0
	DefaultBreakevenMax = 10.0
)

// Shape thresholds on the long-minus-short spread, in percentage points.
const (
	steepSpread    = 1.5
	flatSpreadLow  = -0.5
	bpsPerPctPoint = 100.0
)

var (
	ErrInsufficientVertices = errors.New("termstructure: not enough vertices")
	ErrInsufficientBonds    = errors.New("termstructure: not enough bonds for breakeven")
	ErrNoOverlap            = errors.New("termstructure: curves share no finite tenor in range")
)

// CurveBonds selects the bonds used for the curve of one index family.
// The PREFIXADO curve is built from zero-coupon bonds only; other families
// use every bond of the index.
func CurveBonds(bonds []models.Bond, index models.IndexType) []models.Bond {
	if index == models.IndexPrefixado {
		return models.FilterBonds(bonds, models.ByIndex(index, models.CouponNone))
	}
	return models.FilterBonds(bonds, models.ByIndex(index, ""))
}

// Diagnose reads the curve's end points and classifies its slope. A
// minVertices of zero or less means MinVertices.
func Diagnose(ts models.TermStructure, minVertices int) (models.CurveDiagnostics, error) {
	if minVertices <= 0 {
		minVertices = MinVertices
	}
	if len(ts.Vertices) < minVertices || len(ts.Curve) == 0 {
		return models.CurveDiagnostics{}, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientVertices, len(ts.Vertices), minVertices)
	}

	short := ts.Curve[0]
	long := ts.Curve[len(ts.Curve)-1]
	spread := float64(long.Rate) - float64(short.Rate)

	return models.CurveDiagnostics{
		ShortTenor: short.TenorYears,
		ShortRate:  float64(short.Rate),
		LongTenor:  long.TenorYears,
		LongRate:   float64(long.Rate),
		SlopeBps:   spread * bpsPerPctPoint,
		Shape:      classify(spread),
	}, nil
}

func classify(spread float64) models.CurveShape {
	switch {
	case spread > steepSpread:
		return models.ShapeSteep
	case spread > 0:
		return models.ShapeNormal
	case spread > flatSpreadLow:
		return models.ShapeFlat
	default:
		return models.ShapeInverted
	}
}

// Fisher returns the inflation implied by nominal and real rates, all in % a.a.:
//
//	((1 + n/100) / (1 + r/100) − 1) · 100
func Fisher(nominalPct, realPct float64) float64 {
	return ((1+nominalPct/100)/(1+realPct/100) - 1) * 100
}

// Breakeven joins two curves on identical grid tenors within [minTenor,
// maxTenor] and returns the implied inflation at each tenor where both rates
// are finite.
func Breakeven(nominal, real []models.CurvePoint, minTenor, maxTenor float64) []models.BreakevenPoint {
	reals := make(map[float64]float64, len(real))
	for _, p := range real {
		if p.Rate.Valid() {
			reals[p.TenorYears] = float64(p.Rate)
		}
	}

	var out []models.BreakevenPoint
	for _, p := range nominal {
		if p.TenorYears < minTenor || p.TenorYears > maxTenor || !p.Rate.Valid() {
			continue
		}
		r, ok := reals[p.TenorYears]
		if !ok {
			continue
		}
		out = append(out, models.BreakevenPoint{
			TenorYears: p.TenorYears,
			Nominal:    float64(p.Rate),
			Real:       r,
			Inflation:  Fisher(float64(p.Rate), r),
		})
	}
	return out
}

// MeanBreakeven averages the implied inflation of points. It is NaN for an
// empty series.
func MeanBreakeven(points []models.BreakevenPoint) float64 {
	if len(points) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, p := range points {
		sum += p.Inflation
	}
	return sum / float64(len(points))
}

// SelectBreakevenInputs picks the bonds for the nominal and real curves:
// zero-coupon PREFIXADO, and IPCA with coupon, falling back to zero-coupon
// IPCA when fewer than two coupon bonds are quoted. Both sides need at
// least two bonds.
func SelectBreakevenInputs(bonds []models.Bond) (nominal, real []models.Bond, err error) {
	nominal = models.FilterBonds(bonds, models.ByIndex(models.IndexPrefixado, models.CouponNone))
	real = models.FilterBonds(bonds, models.ByIndex(models.IndexIPCA, models.CouponWith))
	if len(real) < minBreakevenBonds {
		real = models.FilterBonds(bonds, models.ByIndex(models.IndexIPCA, models.CouponNone))
	}
	if len(nominal) < minBreakevenBonds || len(real) < minBreakevenBonds {
		return nil, nil, fmt.Errorf("%w: %d nominal, %d real", ErrInsufficientBonds, len(nominal), len(real))
	}
	return nominal, real, nil
}

// BreakevenCurve builds both curves from bonds under mode and returns the
// implied inflation over the default window along with its mean.
func BreakevenCurve(bonds []models.Bond, mode models.Mode, opts ...Option) ([]models.BreakevenPoint, float64, error) {
	nomBonds, realBonds, err := SelectBreakevenInputs(bonds)
	if err != nil {
		return nil, math.NaN(), err
	}
	nominal := Build(nomBonds, mode, opts...)
	real := Build(realBonds, mode, opts...)

	points := Breakeven(nominal.Curve, real.Curve, DefaultBreakevenMin, DefaultBreakevenMax)
	if len(points) == 0 {
		return nil, math.NaN(), ErrNoOverlap
	}
	return points, MeanBreakeven(points), nil
}
