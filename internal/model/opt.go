package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Opt is an optional indicator reading. The zero value is undefined, which is
// how warm-up gaps are represented throughout the pipeline.
type Opt struct {
	V     float64
	Valid bool
}

// Some wraps a defined value.
func Some(v float64) Opt { return Opt{V: v, Valid: true} }

// None is the undefined reading.
var None = Opt{}

// Get returns the value and whether it is defined.
func (o Opt) Get() (float64, bool) { return o.V, o.Valid }

// Or returns the value, or fallback when undefined.
func (o Opt) Or(fallback float64) float64 {
	if !o.Valid {
		return fallback
	}
	return o.V
}

// MarshalJSON encodes a defined value as a JSON number and an undefined one
// (or a non-finite value) as null.
func (o Opt) MarshalJSON() ([]byte, error) {
	if !o.Valid || math.IsNaN(o.V) || math.IsInf(o.V, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, o.V, 'f', -1, 64), nil
}

// UnmarshalJSON accepts a number or null.
func (o *Opt) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = None
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
