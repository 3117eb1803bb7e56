package indicator

import "strategy-sim/internal/model"

// MACDResult holds the three MACD lines, each index-aligned with the input.
type MACDResult struct {
	Line      []model.Opt
	Signal    []model.Opt
	Histogram []model.Opt
}

// MACD computes line = EMA(fast) - EMA(slow). The signal line is the EMA of
// the compacted line values re-expanded onto the original positions, and the
// histogram is line - signal wherever both exist.
func MACD(values []float64, fast, slow, signal int) MACDResult {
	n := len(values)
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	line := make([]model.Opt, n)
	for i := 0; i < n; i++ {
		if fastEMA[i].Valid && slowEMA[i].Valid {
			line[i] = model.Some(fastEMA[i].V - slowEMA[i].V)
		}
	}

	vals, pos := compact(line)
	sig := expand(n, pos, EMA(vals, signal))

	hist := make([]model.Opt, n)
	for i := 0; i < n; i++ {
		if line[i].Valid && sig[i].Valid {
			hist[i] = model.Some(line[i].V - sig[i].V)
		}
	}

	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}
