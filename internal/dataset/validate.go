package dataset

import (
	"math"
	"sort"
	"time"

	"strategy-sim/internal/model"
)

// Prepare orders candles chronologically (a newest-first file is accepted)
// and validates them. The returned slice is a copy; candles is not modified.
func Prepare(source string, candles []model.Candle) ([]model.Candle, error) {
	if len(candles) == 0 {
		return nil, &LoadError{Source: source, Msg: "no data rows", Err: ErrEmpty}
	}
	out := make([]model.Candle, len(candles))
	copy(out, candles)

	times := make([]time.Time, len(out))
	for i := range out {
		t, err := model.ParseTimestamp(out[i].Timestamp)
		if err != nil {
			return nil, rowError(source, i+1, err, "bad timestamp %q", out[i].Timestamp)
		}
		times[i] = t
	}
	if !sort.SliceIsSorted(out, func(a, b int) bool { return times[a].Before(times[b]) }) {
		idx := make([]int, len(out))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]].Before(times[idx[b]]) })
		sorted := make([]model.Candle, len(out))
		for i, j := range idx {
			sorted[i] = out[j]
		}
		out = sorted
	}
	if err := Validate(source, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks a series the core can consume: strictly ascending
// timestamps, finite prices, non-negative volume and a consistent OHLC range
// (low ≤ open, close ≤ high). Rows are reported 1-based in series order.
func Validate(source string, candles []model.Candle) error {
	if len(candles) == 0 {
		return &LoadError{Source: source, Msg: "no data rows", Err: ErrEmpty}
	}
	var prev time.Time
	for i := range candles {
		c := &candles[i]
		row := i + 1
		t, err := model.ParseTimestamp(c.Timestamp)
		if err != nil {
			return rowError(source, row, err, "bad timestamp %q", c.Timestamp)
		}
		if i > 0 && !t.After(prev) {
			return rowError(source, row, nil, "timestamp %s is not after the previous row", c.Timestamp)
		}
		prev = t

		for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return rowError(source, row, nil, "non-finite value")
			}
		}
		if c.Volume < 0 {
			return rowError(source, row, nil, "negative volume %g", c.Volume)
		}
		if c.Low < 0 {
			return rowError(source, row, nil, "negative price %g", c.Low)
		}
		if c.Low > c.High {
			return rowError(source, row, nil, "low %g above high %g", c.Low, c.High)
		}
		if c.Open < c.Low || c.Open > c.High || c.Close < c.Low || c.Close > c.High {
			return rowError(source, row, nil, "open/close outside [low, high]")
		}
	}
	return nil
}
