package indicator

import (
	"math"

	"strategy-sim/internal/model"
)

// BollingerResult holds the three bands, each index-aligned with the input.
type BollingerResult struct {
	Upper  []model.Opt
	Middle []model.Opt
	Lower  []model.Opt
}

// Bollinger computes middle = SMA(window) and upper/lower = middle ± k·σ, where
// σ is the population standard deviation over the same trailing window.
func Bollinger(values []float64, window int, k float64) BollingerResult {
	n := len(values)
	res := BollingerResult{
		Upper:  make([]model.Opt, n),
		Middle: SMA(values, window),
		Lower:  make([]model.Opt, n),
	}

	for i := range values {
		mean, ok := res.Middle[i].Get()
		if !ok {
			continue
		}
		variance := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := values[j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(window))
		res.Upper[i] = model.Some(mean + k*std)
		res.Lower[i] = model.Some(mean - k*std)
	}
	return res
}
