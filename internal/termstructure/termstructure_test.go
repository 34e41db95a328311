package termstructure

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/medicech/tesouro-quant/pkg/models"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func bond(index models.IndexType, coupon models.CouponFlag, year int, buy float64) models.Bond {
	return models.Bond{
		ID:           string(index) + "_" + string(coupon),
		IndexType:    index,
		Coupon:       coupon,
		BaseDate:     base,
		MaturityDate: time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		BuyRate:      models.Float(buy),
		SellRate:     models.Float(buy + 0.12),
		BuyPrice:     1000,
		SellPrice:    990,
	}
}

func vertices(pairs ...float64) []models.Vertex {
	var vs []models.Vertex
	for i := 0; i+1 < len(pairs); i += 2 {
		vs = append(vs, models.Vertex{TenorYears: pairs[i], Rate: pairs[i+1]})
	}
	return vs
}

// ── Grid ──

func TestGridDefault(t *testing.T) {
	g := Grid(DefaultMaxTenor, DefaultStep)
	if len(g) != 160 {
		t.Fatalf("len: got %d, want 160", len(g))
	}
	if g[0] != 0.25 || g[len(g)-1] != 40 {
		t.Errorf("bounds: got %v..%v, want 0.25..40", g[0], g[len(g)-1])
	}
	for _, x := range g {
		if x <= 0 {
			t.Fatalf("grid contains non-positive tenor %v", x)
		}
	}
}

func TestGridInexactStep(t *testing.T) {
	tests := []struct {
		max, step float64
		wantLen   int
	}{
		{0.9, 0.3, 3},
		{1.0, 0.3, 3},
		{10, 0.1, 100},
		{0, 0.25, 0},
		{5, 0, 0},
		{5, -1, 0},
	}
	for _, tt := range tests {
		if got := Grid(tt.max, tt.step); len(got) != tt.wantLen {
			t.Errorf("Grid(%v, %v): got %d points, want %d", tt.max, tt.step, len(got), tt.wantLen)
		}
	}
}

// ── Vertices ──

func TestBuildVerticesAveragesDuplicateTenors(t *testing.T) {
	bonds := []models.Bond{
		bond(models.IndexPrefixado, models.CouponNone, 2028, 8.0),
		bond(models.IndexPrefixado, models.CouponNone, 2028, 12.0),
	}
	vs := BuildVertices(bonds, models.ModeBuy)
	if len(vs) != 1 {
		t.Fatalf("got %d vertices, want 1", len(vs))
	}
	if vs[0].Rate != 10.0 {
		t.Errorf("rate: got %v, want 10.0", vs[0].Rate)
	}
	if want := bonds[0].TenorYears(); vs[0].TenorYears != want {
		t.Errorf("tenor: got %v, want %v", vs[0].TenorYears, want)
	}
}

func TestBuildVerticesDropsAndSorts(t *testing.T) {
	missingRate := bond(models.IndexIPCA, models.CouponNone, 2030, 0)
	missingRate.BuyRate = models.NaN()
	noBase := bond(models.IndexIPCA, models.CouponNone, 2031, 7)
	noBase.BaseDate = time.Time{}
	matured := bond(models.IndexIPCA, models.CouponNone, 2026, 7)

	bonds := []models.Bond{
		bond(models.IndexIPCA, models.CouponNone, 2045, 6.5),
		missingRate,
		bond(models.IndexIPCA, models.CouponNone, 2029, 7.8),
		noBase,
		matured,
		bond(models.IndexIPCA, models.CouponNone, 2035, 7.1),
	}
	vs := BuildVertices(bonds, models.ModeBuy)
	if len(vs) != 3 {
		t.Fatalf("got %d vertices, want 3: %+v", len(vs), vs)
	}
	for i := 1; i < len(vs); i++ {
		if vs[i].TenorYears <= vs[i-1].TenorYears {
			t.Fatalf("vertices not strictly ascending: %+v", vs)
		}
	}
	if vs[0].Rate != 7.8 || vs[2].Rate != 6.5 {
		t.Errorf("unexpected rates: %+v", vs)
	}
}

func TestBuildVerticesUsesMode(t *testing.T) {
	bonds := []models.Bond{bond(models.IndexSELIC, models.CouponNone, 2029, 0.1)}
	vs := BuildVertices(bonds, models.ModeSell)
	if len(vs) != 1 || math.Abs(vs[0].Rate-0.22) > 1e-12 {
		t.Errorf("sell vertices: got %+v", vs)
	}
}

// ── Interpolation ──

func TestInterpolatePassesThroughVertices(t *testing.T) {
	vs := vertices(1, 10, 3, 12, 5, 11)
	curve := Interpolate(vs, []float64{1, 3, 5})
	for i, v := range vs {
		if float64(curve[i].Rate) != v.Rate {
			t.Errorf("at %v: got %v, want %v", v.TenorYears, curve[i].Rate, v.Rate)
		}
	}
}

func TestInterpolateLinearAndFlat(t *testing.T) {
	vs := vertices(1, 10, 3, 12, 5, 11)
	tests := []struct {
		x, want float64
	}{
		{0.25, 10},
		{0.5, 10},
		{2, 11},
		{4, 11.5},
		{4.5, 11.25},
		{5.25, 11},
		{40, 11},
	}
	grid := make([]float64, len(tests))
	for i, tt := range tests {
		grid[i] = tt.x
	}
	curve := Interpolate(vs, grid)
	for i, tt := range tests {
		if curve[i].TenorYears != tt.x {
			t.Errorf("tenor %d: got %v, want %v", i, curve[i].TenorYears, tt.x)
		}
		if math.Abs(float64(curve[i].Rate)-tt.want) > 1e-12 {
			t.Errorf("rate at %v: got %v, want %v", tt.x, curve[i].Rate, tt.want)
		}
	}
}

func TestInterpolateFlatCurve(t *testing.T) {
	curve := Interpolate(vertices(1, 10, 3, 10, 5, 10), Grid(DefaultMaxTenor, DefaultStep))
	for _, p := range curve {
		if p.Rate != 10 {
			t.Fatalf("at %v: got %v, want 10", p.TenorYears, p.Rate)
		}
	}
}

func TestInterpolateEmpty(t *testing.T) {
	curve := Interpolate(nil, Grid(2, 0.5))
	if len(curve) != 4 {
		t.Fatalf("got %d points, want 4", len(curve))
	}
	for _, p := range curve {
		if p.Rate.Valid() {
			t.Errorf("at %v: got %v, want NaN", p.TenorYears, p.Rate)
		}
	}
}

func TestInterpolateSingleVertex(t *testing.T) {
	curve := Interpolate(vertices(7, 9.5), []float64{0.25, 7, 30})
	for _, p := range curve {
		if p.Rate != 9.5 {
			t.Errorf("at %v: got %v, want 9.5", p.TenorYears, p.Rate)
		}
	}
}

// ── Build ──

func TestBuild(t *testing.T) {
	bonds := []models.Bond{
		bond(models.IndexPrefixado, models.CouponNone, 2028, 13.2),
		bond(models.IndexPrefixado, models.CouponNone, 2031, 13.6),
		bond(models.IndexPrefixado, models.CouponNone, 2035, 13.9),
	}
	ts := Build(bonds, models.ModeBuy)
	if len(ts.Vertices) != 3 || len(ts.Curve) != 160 {
		t.Fatalf("got %d vertices, %d points", len(ts.Vertices), len(ts.Curve))
	}
	if ts.IndexType != models.IndexPrefixado || ts.Mode != models.ModeBuy || !ts.BaseDate.Equal(base) {
		t.Errorf("metadata: %+v", ts)
	}
	if ts.Curve[0].Rate != 13.2 || ts.Curve[len(ts.Curve)-1].Rate != 13.9 {
		t.Errorf("flat ends: %v .. %v", ts.Curve[0].Rate, ts.Curve[len(ts.Curve)-1].Rate)
	}

	small := Build(bonds, models.ModeBuy, WithMaxTenor(10), WithStep(0.5))
	if len(small.Curve) != 20 || small.Curve[19].TenorYears != 10 {
		t.Errorf("custom grid: got %d points ending at %v", len(small.Curve), small.Curve[len(small.Curve)-1].TenorYears)
	}
}

func TestBuildReturnsFreshSlices(t *testing.T) {
	bonds := []models.Bond{
		bond(models.IndexIPCA, models.CouponNone, 2029, 7),
		bond(models.IndexIPCA, models.CouponNone, 2035, 6.8),
	}
	first := Build(bonds, models.ModeBuy)
	first.Vertices[0].Rate = -1
	first.Curve[0].Rate = -1

	second := Build(bonds, models.ModeBuy)
	if second.Vertices[0].Rate != 7 || second.Curve[0].Rate != 7 {
		t.Errorf("second build affected by mutation: %+v / %+v", second.Vertices[0], second.Curve[0])
	}
	if bonds[0].BuyRate != 7 {
		t.Error("input bonds mutated")
	}
}

// ── Analytics ──

func TestDiagnose(t *testing.T) {
	ts := models.TermStructure{Vertices: vertices(1, 10, 3, 12, 5, 13)}
	ts.Curve = Interpolate(ts.Vertices, Grid(DefaultMaxTenor, DefaultStep))

	d, err := Diagnose(ts, 0)
	if err != nil {
		t.Fatalf("Diagnose error: %v", err)
	}
	if d.ShortTenor != 0.25 || d.ShortRate != 10 || d.LongTenor != 40 || d.LongRate != 13 {
		t.Errorf("end points: %+v", d)
	}
	if math.Abs(d.SlopeBps-300) > 1e-9 || d.Shape != models.ShapeSteep {
		t.Errorf("slope: %v %v", d.SlopeBps, d.Shape)
	}
}

func TestDiagnoseInsufficientVertices(t *testing.T) {
	ts := models.TermStructure{Vertices: vertices(1, 10, 3, 12)}
	ts.Curve = Interpolate(ts.Vertices, Grid(5, 1))
	if _, err := Diagnose(ts, 0); !errors.Is(err, ErrInsufficientVertices) {
		t.Errorf("got %v, want ErrInsufficientVertices", err)
	}
	if _, err := Diagnose(ts, 2); err != nil {
		t.Errorf("minVertices 2: unexpected error %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		spread float64
		want   models.CurveShape
	}{
		{2, models.ShapeSteep},
		{1.5, models.ShapeNormal},
		{0.3, models.ShapeNormal},
		{0, models.ShapeFlat},
		{-0.2, models.ShapeFlat},
		{-0.5, models.ShapeInverted},
		{-3, models.ShapeInverted},
	}
	for _, tt := range tests {
		if got := classify(tt.spread); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.spread, got, tt.want)
		}
	}
}

func TestFisher(t *testing.T) {
	got := Fisher(12, 6)
	want := (1.12/1.06 - 1) * 100
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("got %v, want %v", got, want)
	}
	if Fisher(6, 6) != 0 {
		t.Errorf("equal rates should imply zero inflation, got %v", Fisher(6, 6))
	}
}

func TestBreakevenWindowAndMean(t *testing.T) {
	grid := Grid(DefaultMaxTenor, DefaultStep)
	nominal := Interpolate(vertices(1, 12, 20, 12), grid)
	real := Interpolate(vertices(1, 6, 20, 6), grid)
	real[4].Rate = models.NaN() // tenor 1.25

	points := Breakeven(nominal, real, DefaultBreakevenMin, DefaultBreakevenMax)
	if len(points) != 36 {
		t.Fatalf("got %d points, want 36", len(points))
	}
	if points[0].TenorYears != 1 || points[len(points)-1].TenorYears != 10 {
		t.Errorf("window: %v..%v", points[0].TenorYears, points[len(points)-1].TenorYears)
	}
	for _, p := range points {
		if p.TenorYears == 1.25 {
			t.Fatal("tenor with NaN real rate should be skipped")
		}
	}
	want := Fisher(12, 6)
	if got := MeanBreakeven(points); math.Abs(got-want) > 1e-9 {
		t.Errorf("mean: got %v, want %v", got, want)
	}
	if !math.IsNaN(MeanBreakeven(nil)) {
		t.Error("mean of empty series should be NaN")
	}
}

func TestSelectBreakevenInputs(t *testing.T) {
	pre := []models.Bond{
		bond(models.IndexPrefixado, models.CouponNone, 2028, 13),
		bond(models.IndexPrefixado, models.CouponNone, 2032, 13.5),
		bond(models.IndexPrefixado, models.CouponWith, 2035, 13.7),
	}
	ipcaJS := bond(models.IndexIPCA, models.CouponWith, 2035, 7)
	ipcaStd := []models.Bond{
		bond(models.IndexIPCA, models.CouponNone, 2029, 7.5),
		bond(models.IndexIPCA, models.CouponNone, 2045, 6.9),
	}

	all := append(append(append([]models.Bond{}, pre...), ipcaJS), ipcaStd...)
	nominal, real, err := SelectBreakevenInputs(all)
	if err != nil {
		t.Fatalf("SelectBreakevenInputs error: %v", err)
	}
	if len(nominal) != 2 {
		t.Errorf("nominal: got %d bonds, want 2 zero-coupon", len(nominal))
	}
	if len(real) != 2 || real[0].Coupon != models.CouponNone {
		t.Errorf("real: expected fallback to zero-coupon IPCA, got %+v", real)
	}

	if _, _, err := SelectBreakevenInputs(pre); !errors.Is(err, ErrInsufficientBonds) {
		t.Errorf("no IPCA: got %v, want ErrInsufficientBonds", err)
	}
}

func TestBreakevenCurve(t *testing.T) {
	bonds := []models.Bond{
		bond(models.IndexPrefixado, models.CouponNone, 2028, 13),
		bond(models.IndexPrefixado, models.CouponNone, 2032, 13),
		bond(models.IndexIPCA, models.CouponWith, 2030, 7),
		bond(models.IndexIPCA, models.CouponWith, 2040, 7),
	}
	points, mean, err := BreakevenCurve(bonds, models.ModeBuy)
	if err != nil {
		t.Fatalf("BreakevenCurve error: %v", err)
	}
	if len(points) != 37 {
		t.Errorf("got %d points, want 37", len(points))
	}
	if want := Fisher(13, 7); math.Abs(mean-want) > 1e-9 {
		t.Errorf("mean: got %v, want %v", mean, want)
	}
}

func TestCurveBonds(t *testing.T) {
	bonds := []models.Bond{
		bond(models.IndexPrefixado, models.CouponNone, 2028, 13),
		bond(models.IndexPrefixado, models.CouponWith, 2033, 13.4),
		bond(models.IndexIPCA, models.CouponWith, 2035, 7),
		bond(models.IndexIPCA, models.CouponNone, 2045, 6.8),
	}
	if got := CurveBonds(bonds, models.IndexPrefixado); len(got) != 1 {
		t.Errorf("PREFIXADO: got %d bonds, want 1", len(got))
	}
	if got := CurveBonds(bonds, models.IndexIPCA); len(got) != 2 {
		t.Errorf("IPCA: got %d bonds, want 2", len(got))
	}
}
