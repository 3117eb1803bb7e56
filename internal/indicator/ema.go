package indicator

import "strategy-sim/internal/model"

// EMA returns the exponential moving average. It is seeded with the SMA of the
// first window values at index window-1; afterwards
// ema[i] = v[i]*m + ema[i-1]*(1-m) with m = 2/(window+1).
func EMA(values []float64, window int) []model.Opt {
	out := make([]model.Opt, len(values))
	if window <= 0 || len(values) < window {
		return out
	}

	multiplier := 2.0 / float64(window+1)

	sum := 0.0
	for i := 0; i < window; i++ {
		sum += values[i]
	}
	current := sum / float64(window)
	out[window-1] = model.Some(current)

	for i := window; i < len(values); i++ {
		current = (values[i] * multiplier) + (current * (1 - multiplier))
		out[i] = model.Some(current)
	}
	return out
}
