// Package termstructure builds yield curves from market-observed bond rates.
//
// A curve is built in two steps: BuildVertices extracts one (tenor, rate)
// vertex per unique tenor, and Interpolate evaluates those vertices on a
// regular grid with linear interpolation and flat extrapolation. Build does
// both over the default grid (0, 40] years in 0.25 steps.
package termstructure

import (
	"math"
	"sort"

	"github.com/medicech/tesouro-quant/pkg/models"
)

// Defaults for the interpolation grid.
const (
	DefaultMaxTenor = 40.0
	DefaultStep     = 0.25
)

// gridEpsilon admits the last grid point when maxTenor is not an exact
// multiple of step in floating point.
const gridEpsilon = 1e-9

// Option configures Build.
type Option func(*options)

type options struct {
	maxTenor float64
	step     float64
}

// WithMaxTenor sets the last grid tenor in years.
func WithMaxTenor(years float64) Option {
	return func(o *options) {
		if years > 0 {
			o.maxTenor = years
		}
	}
}

// WithStep sets the grid spacing in years.
func WithStep(years float64) Option {
	return func(o *options) {
		if years > 0 {
			o.step = years
		}
	}
}

// Build returns the vertices of bonds under mode and their interpolated curve.
// The caller is expected to pass bonds sharing one index type. Each call
// allocates fresh slices.
func Build(bonds []models.Bond, mode models.Mode, opts ...Option) models.TermStructure {
	o := options{maxTenor: DefaultMaxTenor, step: DefaultStep}
	for _, opt := range opts {
		opt(&o)
	}

	vertices := BuildVertices(bonds, mode)
	ts := models.TermStructure{
		Mode:     mode,
		Vertices: vertices,
		Curve:    Interpolate(vertices, Grid(o.maxTenor, o.step)),
	}
	if len(bonds) > 0 {
		ts.IndexType = bonds[0].IndexType
		ts.BaseDate = bonds[0].BaseDate
	}
	return ts
}

// BuildVertices maps each bond to (tenor, rate). Rows with a non-finite or
// non-positive tenor, or a non-finite rate, are dropped. Bonds sharing the
// exact same tenor are collapsed into one vertex at their mean rate. The
// result is sorted by tenor.
func BuildVertices(bonds []models.Bond, mode models.Mode) []models.Vertex {
	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[float64]*acc)
	for _, b := range bonds {
		tenor := b.TenorYears()
		rate := b.Rate(mode)
		if !finite(tenor) || tenor <= 0 || !finite(rate) {
			continue
		}
		g, ok := groups[tenor]
		if !ok {
			g = &acc{}
			groups[tenor] = g
		}
		g.sum += rate
		g.n++
	}

	vertices := make([]models.Vertex, 0, len(groups))
	for tenor, g := range groups {
		vertices = append(vertices, models.Vertex{TenorYears: tenor, Rate: g.sum / float64(g.n)})
	}
	sort.Slice(vertices, func(i, j int) bool { return vertices[i].TenorYears < vertices[j].TenorYears })
	return vertices
}

// Grid returns the tenors step, 2·step, … up to maxTenor inclusive. Zero is
// never part of the grid.
func Grid(maxTenor, step float64) []float64 {
	if !(step > 0) || !(maxTenor > 0) || math.IsInf(maxTenor, 0) {
		return nil
	}
	n := int(math.Floor(maxTenor/step + gridEpsilon))
	grid := make([]float64, 0, n)
	for i := 1; i <= n; i++ {
		grid = append(grid, float64(i)*step)
	}
	return grid
}

// Interpolate evaluates the piecewise-linear curve through vertices at each
// grid tenor. Tenors outside the vertex range take the nearest end vertex's
// rate. With no vertices every point is NaN. vertices must be sorted by tenor
// with no duplicates, as BuildVertices returns them.
func Interpolate(vertices []models.Vertex, grid []float64) []models.CurvePoint {
	curve := make([]models.CurvePoint, len(grid))
	for i, x := range grid {
		curve[i] = models.CurvePoint{TenorYears: x, Rate: models.Float(rateAt(vertices, x))}
	}
	return curve
}

func rateAt(vertices []models.Vertex, x float64) float64 {
	n := len(vertices)
	switch {
	case n == 0:
		return math.NaN()
	case x <= vertices[0].TenorYears:
		return vertices[0].Rate
	case x >= vertices[n-1].TenorYears:
		return vertices[n-1].Rate
	}

	// First vertex with tenor >= x; x is strictly inside the range here.
	j := sort.Search(n, func(i int) bool { return vertices[i].TenorYears >= x })
	right := vertices[j]
	if right.TenorYears == x {
		return right.Rate
	}
	left := vertices[j-1]
	w := (x - left.TenorYears) / (right.TenorYears - left.TenorYears)
	return left.Rate + w*(right.Rate-left.Rate)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
