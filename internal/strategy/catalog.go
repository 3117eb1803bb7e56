package strategy

import "strategy-sim/internal/indicator"

// Config is a read-only catalog entry describing a strategy.
//
// Params documents the periods and thresholds in effect. They are built from
// the same constants the indicator pipeline and Decide use; changing a value
// here does not reparameterize the computation.
type Config struct {
	ID          ID                 `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Params      map[string]float64 `json:"params"`
	Indicators  []string           `json:"indicators"`
}

var catalog = []Config{
	{
		ID:          SMACrossover,
		Name:        "SMA Crossover",
		Description: "Buys when the short SMA crosses above the long SMA and sells on the opposite cross.",
		Params:      map[string]float64{"shortPeriod": indicator.ShortWindow, "longPeriod": indicator.LongWindow},
		Indicators:  []string{"SMA 10", "SMA 20"},
	},
	{
		ID:          EMACrossover,
		Name:        "EMA Crossover",
		Description: "Buys when the short EMA crosses above the long EMA and sells on the opposite cross.",
		Params:      map[string]float64{"shortPeriod": indicator.ShortWindow, "longPeriod": indicator.LongWindow},
		Indicators:  []string{"EMA 10", "EMA 20"},
	},
	{
		ID:          RSI,
		Name:        "RSI",
		Description: "Buys when RSI is oversold and sells when it is overbought.",
		Params:      map[string]float64{"period": indicator.RSIWindow, "oversold": RSIOversold, "overbought": RSIOverbought},
		Indicators:  []string{"RSI 14"},
	},
	{
		ID:          MACD,
		Name:        "MACD",
		Description: "Buys when the MACD line crosses above its signal line and sells on the opposite cross.",
		Params:      map[string]float64{"fast": indicator.MACDFast, "slow": indicator.MACDSlow, "signal": indicator.MACDSignal},
		Indicators:  []string{"MACD", "Signal", "Histogram"},
	},
	{
		ID:          Bollinger,
		Name:        "Bollinger Bands",
		Description: "Buys at or below the lower band and sells at or above the upper band.",
		Params:      map[string]float64{"period": indicator.BollWindow, "stdDev": indicator.BollK},
		Indicators:  []string{"Upper Band", "Middle Band", "Lower Band"},
	},
	{
		ID:          Stochastic,
		Name:        "Stochastic",
		Description: "Buys when %K and %D are both oversold and sells when both are overbought.",
		Params: map[string]float64{
			"kPeriod": indicator.StochKPeriod, "dPeriod": indicator.StochDPeriod,
			"oversold": StochOversold, "overbought": StochOverbought,
		},
		Indicators: []string{"%K", "%D"},
	},
	{
		ID:          MeanReversion,
		Name:        "Mean Reversion",
		Description: "Buys when price falls well below its 20-period mean and sells when it rises well above it.",
		Params:      map[string]float64{"period": indicator.LongWindow, "thresholdPct": MeanReversionBand * 100},
		Indicators:  []string{"SMA 20"},
	},
	{
		ID:          BuyAndHold,
		Name:        "Buy & Hold",
		Description: "Buys at the first candle and never sells. Benchmark for the other strategies.",
		Params:      map[string]float64{},
		Indicators:  []string{},
	},
}

// Catalog returns a copy of every catalog entry in display order.
func Catalog() []Config {
	out := make([]Config, len(catalog))
	for i, c := range catalog {
		out[i] = c.clone()
	}
	return out
}

// Lookup returns the catalog entry for id.
func Lookup(id ID) (Config, bool) {
	for _, c := range catalog {
		if c.ID == id {
			return c.clone(), true
		}
	}
	return Config{}, false
}

func (c Config) clone() Config {
	params := make(map[string]float64, len(c.Params))
	for k, v := range c.Params {
		params[k] = v
	}
	c.Params = params
	indicators := make([]string, len(c.Indicators))
	copy(indicators, c.Indicators)
	c.Indicators = indicators
	return c
}
