// Package indicator computes technical indicators over a candle series.
//
// Every function is pure and causal: the value at index i depends only on
// inputs[0..i]. Outputs are index-aligned with the input and use model.Opt to
// mark warm-up entries that do not have enough history yet.
package indicator

import "strategy-sim/internal/model"

// Fixed pipeline parameters. The strategy catalog reports these same
// constants as its descriptive parameter map.
const (
	ShortWindow = 10
	LongWindow  = 20

	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9

	BollWindow = 20
	BollK      = 2.0

	StochKPeriod = 14
	StochDPeriod = 3

	RSIWindow = 14

	// RSINeutral is what a readout displays for RSI during warm-up. It is a
	// placeholder, not a computed value, and is never fed to decisions.
	RSINeutral = 50.0
)

// compact drops undefined entries, returning the defined values and the
// original positions they came from.
func compact(xs []model.Opt) ([]float64, []int) {
	vals := make([]float64, 0, len(xs))
	pos := make([]int, 0, len(xs))
	for i, x := range xs {
		if x.Valid {
			vals = append(vals, x.V)
			pos = append(pos, i)
		}
	}
	return vals, pos
}

// expand places ys (computed over a compacted series) back onto the original
// positions of an n-length series.
func expand(n int, pos []int, ys []model.Opt) []model.Opt {
	out := make([]model.Opt, n)
	for j, y := range ys {
		out[pos[j]] = y
	}
	return out
}
