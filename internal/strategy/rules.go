package strategy

import (
	"fmt"

	"strategy-sim/internal/indicator"
	"strategy-sim/internal/model"
)

// pair returns the previous and current candle, or ok=false at index 0.
func pair(index int, candles []model.Candle) (prev, cur *model.Candle, ok bool) {
	if index < 1 {
		return nil, nil, false
	}
	return &candles[index-1], &candles[index], true
}

// decideBuyAndHold buys at index 0 and holds everywhere else. A ledger starts
// stepping at the warm-up start and first evaluates the index after it, so
// it never sees index 0 and Buy & Hold never trades there.
func decideBuyAndHold(index int, candles []model.Candle) Decision {
	if index == 0 {
		return Decision{
			Action: ActionBuy,
			Reason: fmt.Sprintf("Buy & Hold entry at index %d, close %.2f", index, candles[index].Close),
		}
	}
	return hold("Buy & Hold: holding position")
}

// decideCrossover handles every two-line crossover strategy. lines returns
// the fast and slow line of a candle.
func decideCrossover(label string, index int, candles []model.Candle, lines func(*model.Candle) (model.Opt, model.Opt)) Decision {
	prev, cur, ok := pair(index, candles)
	if !ok {
		return hold("%s crossover: no previous candle", label)
	}
	pf, ps := lines(prev)
	cf, cs := lines(cur)
	if !pf.Valid || !ps.Valid || !cf.Valid || !cs.Valid {
		return hold("%s crossover: indicators warming up", label)
	}

	// Golden cross: fast crosses above slow
	if pf.V <= ps.V && cf.V > cs.V {
		return Decision{
			Action: ActionBuy,
			Reason: fmt.Sprintf("%s bullish crossover: fast %.4f > slow %.4f (prev %.4f <= %.4f)", label, cf.V, cs.V, pf.V, ps.V),
		}
	}
	// Death cross: fast crosses below slow
	if pf.V >= ps.V && cf.V < cs.V {
		return Decision{
			Action: ActionSell,
			Reason: fmt.Sprintf("%s bearish crossover: fast %.4f < slow %.4f (prev %.4f >= %.4f)", label, cf.V, cs.V, pf.V, ps.V),
		}
	}
	return hold("%s: no crossover (fast %.4f, slow %.4f)", label, cf.V, cs.V)
}

func decideRSI(index int, candles []model.Candle) Decision {
	_, cur, ok := pair(index, candles)
	if !ok {
		return hold("RSI: no previous candle")
	}
	rsi, ok := cur.RSI.Get()
	if !ok {
		return hold("RSI: warming up")
	}
	switch {
	case rsi < RSIOversold:
		return Decision{Action: ActionBuy, Reason: fmt.Sprintf("RSI %.2f below oversold %.0f", rsi, RSIOversold)}
	case rsi > RSIOverbought:
		return Decision{Action: ActionSell, Reason: fmt.Sprintf("RSI %.2f above overbought %.0f", rsi, RSIOverbought)}
	}
	return hold("RSI %.2f within %.0f-%.0f", rsi, RSIOversold, RSIOverbought)
}

func decideBollinger(index int, candles []model.Candle) Decision {
	_, cur, ok := pair(index, candles)
	if !ok {
		return hold("Bollinger: no previous candle")
	}
	upper, okU := cur.BollUpper.Get()
	lower, okL := cur.BollLower.Get()
	if !okU || !okL {
		return hold("Bollinger: bands warming up")
	}
	switch {
	case cur.Close <= lower:
		return Decision{Action: ActionBuy, Reason: fmt.Sprintf("close %.2f at or below lower band %.2f", cur.Close, lower)}
	case cur.Close >= upper:
		return Decision{Action: ActionSell, Reason: fmt.Sprintf("close %.2f at or above upper band %.2f", cur.Close, upper)}
	}
	return hold("close %.2f inside bands %.2f-%.2f", cur.Close, lower, upper)
}

func decideStochastic(index int, candles []model.Candle) Decision {
	_, cur, ok := pair(index, candles)
	if !ok {
		return hold("Stochastic: no previous candle")
	}
	k, okK := cur.StochK.Get()
	d, okD := cur.StochD.Get()
	if !okK || !okD {
		return hold("Stochastic: warming up")
	}
	switch {
	case k < StochOversold && d < StochOversold:
		return Decision{Action: ActionBuy, Reason: fmt.Sprintf("%%K %.2f and %%D %.2f below %.0f", k, d, StochOversold)}
	case k > StochOverbought && d > StochOverbought:
		return Decision{Action: ActionSell, Reason: fmt.Sprintf("%%K %.2f and %%D %.2f above %.0f", k, d, StochOverbought)}
	}
	return hold("%%K %.2f, %%D %.2f: no signal", k, d)
}

func decideMeanReversion(index int, candles []model.Candle) Decision {
	_, cur, ok := pair(index, candles)
	if !ok {
		return hold("Mean reversion: no previous candle")
	}
	sma, ok := cur.SMALong.Get()
	if !ok || sma == 0 {
		return hold("Mean reversion: SMA(%d) unavailable", indicator.LongWindow)
	}
	dev := (cur.Close - sma) / sma
	switch {
	case dev < -MeanReversionBand:
		return Decision{
			Action: ActionBuy,
			Reason: fmt.Sprintf("close %.2f is %.2f%% below SMA(%d) %.2f", cur.Close, -dev*100, indicator.LongWindow, sma),
		}
	case dev > MeanReversionBand:
		return Decision{
			Action: ActionSell,
			Reason: fmt.Sprintf("close %.2f is %.2f%% above SMA(%d) %.2f", cur.Close, dev*100, indicator.LongWindow, sma),
		}
	}
	return hold("close %.2f within %.0f%% of SMA(%d) %.2f", cur.Close, MeanReversionBand*100, indicator.LongWindow, sma)
}
