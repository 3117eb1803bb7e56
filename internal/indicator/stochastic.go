package indicator

import "strategy-sim/internal/model"

// StochasticResult holds %K and %D, index-aligned with the input.
type StochasticResult struct {
	K []model.Opt
	D []model.Opt
}

// Stochastic computes %K = (close - lowestLow) / (highestHigh - lowestLow) × 100
// over the trailing kPeriod bars. A window with no range yields exactly 50.
// %D is the SMA(dPeriod) of the compacted %K values, re-expanded.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) StochasticResult {
	n := len(closes)
	k := make([]model.Opt, n)

	if kPeriod > 0 {
		for i := kPeriod - 1; i < n; i++ {
			hh, ll := highs[i], lows[i]
			for j := i - kPeriod + 1; j < i; j++ {
				if highs[j] > hh {
					hh = highs[j]
				}
				if lows[j] < ll {
					ll = lows[j]
				}
			}
			if hh == ll {
				k[i] = model.Some(50)
				continue
			}
			k[i] = model.Some((closes[i] - ll) / (hh - ll) * 100)
		}
	}

	vals, pos := compact(k)
	d := expand(n, pos, SMA(vals, dPeriod))

	return StochasticResult{K: k, D: d}
}
