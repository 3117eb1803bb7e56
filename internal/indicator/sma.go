package indicator

import "strategy-sim/internal/model"

// SMA returns the simple moving average over the trailing window. The first
// defined value is at index window-1.
func SMA(values []float64, window int) []model.Opt {
	out := make([]model.Opt, len(values))
	if window <= 0 {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			// Drop the value leaving the window
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = model.Some(sum / float64(window))
		}
	}
	return out
}
