package models

import (
	"bytes"
	"encoding/json"
	"math"
)

// Float is a float64 that may hold NaN to mean "missing" or "not computable".
// Non-finite values encode as JSON null and null decodes back to NaN, so a
// degraded metric survives snapshot files and API responses.
type Float float64

// NaN returns a Float holding NaN.
func NaN() Float { return Float(math.NaN()) }

// Valid reports whether f is a finite number.
func (f Float) Valid() bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Or returns f when valid, def otherwise.
func (f Float) Or(def float64) float64 {
	if f.Valid() {
		return float64(f)
	}
	return def
}

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = NaN()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}
