package indicator

import "strategy-sim/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing.
//
// Gains and losses are summed over the first window transitions; the first
// value is emitted at index window from the plain averages, later values use
// avg = (avg*(window-1) + x) / window. A zero average loss yields 100.
// Indices before window are undefined.
func RSI(closes []float64, window int) []model.Opt {
	out := make([]model.Opt, len(closes))
	if window <= 0 || len(closes) <= window {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= window; i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	p := float64(window)
	avgGain /= p
	avgLoss /= p
	out[window] = model.Some(rsiValue(avgGain, avgLoss))

	for i := window + 1; i < len(closes); i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = model.Some(rsiValue(avgGain, avgLoss))
	}
	return out
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiValue(avgGain, avgLoss float64) float64 {
	// RS is +Inf here, which maps to 100
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
