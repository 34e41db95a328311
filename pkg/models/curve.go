package models

import "time"

// Vertex is one observed (tenor, rate) pair of a term structure.
type Vertex struct {
	TenorYears float64 `json:"tenor_years"`
	Rate       float64 `json:"rate"` // % a.a.
}

// CurvePoint is one grid point of an interpolated curve. Rate is NaN when the
// curve has no vertices.
type CurvePoint struct {
	TenorYears float64 `json:"tenor_years"`
	Rate       Float   `json:"rate"`
}

// TermStructure pairs the observed vertices with the interpolated curve.
type TermStructure struct {
	IndexType IndexType    `json:"index_type,omitempty"`
	Mode      Mode         `json:"mode"`
	BaseDate  time.Time    `json:"base_date,omitempty"`
	Vertices  []Vertex     `json:"vertices"`
	Curve     []CurvePoint `json:"curve"`
}

// CurveShape classifies the slope of a curve.
type CurveShape string

const (
	ShapeSteep    CurveShape = "STEEP"
	ShapeNormal   CurveShape = "NORMAL"
	ShapeFlat     CurveShape = "FLAT"
	ShapeInverted CurveShape = "INVERTED"
)

// CurveDiagnostics summarizes a curve by its end points.
type CurveDiagnostics struct {
	ShortTenor float64    `json:"short_tenor_years"`
	ShortRate  float64    `json:"short_rate"`
	LongTenor  float64    `json:"long_tenor_years"`
	LongRate   float64    `json:"long_rate"`
	SlopeBps   float64    `json:"slope_bps"`
	Shape      CurveShape `json:"shape"`
}

// BreakevenPoint is the Fisher-implied inflation at one tenor.
type BreakevenPoint struct {
	TenorYears float64 `json:"tenor_years"`
	Nominal    float64 `json:"nominal"`
	Real       float64 `json:"real"`
	Inflation  float64 `json:"inflation"` // % a.a.
}
