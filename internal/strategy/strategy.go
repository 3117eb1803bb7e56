// Package strategy maps decorated candle state to trading decisions.
//
// Decide is a pure function: for a given strategy, index and series it always
// returns the same Decision and never touches any state. Every BUY or SELL
// reason carries the numeric values that triggered it.
package strategy

import (
	"fmt"

	"strategy-sim/internal/model"
)

// ID identifies one of the built-in strategies.
type ID string

const (
	SMACrossover  ID = "sma_crossover"
	EMACrossover  ID = "ema_crossover"
	RSI           ID = "rsi"
	MACD          ID = "macd"
	Bollinger     ID = "bollinger"
	Stochastic    ID = "stochastic"
	MeanReversion ID = "mean_reversion"
	BuyAndHold    ID = "buy_and_hold"
)

// IDs lists every strategy in catalog order.
var IDs = []ID{SMACrossover, EMACrossover, RSI, MACD, Bollinger, Stochastic, MeanReversion, BuyAndHold}

// ParseID validates a strategy identifier.
func ParseID(s string) (ID, bool) {
	for _, id := range IDs {
		if string(id) == s {
			return id, true
		}
	}
	return "", false
}

// Decision thresholds.
const (
	RSIOversold   = 30.0
	RSIOverbought = 70.0

	StochOversold   = 20.0
	StochOverbought = 80.0

	// MeanReversionBand is the fractional deviation from SMA(20) that triggers.
	MeanReversionBand = 0.02
)

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Decision is the outcome of evaluating a strategy at one index.
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

func hold(format string, args ...any) Decision {
	return Decision{Action: ActionHold, Reason: fmt.Sprintf(format, args...)}
}

// Decide evaluates strategy id at index against the previous candle.
func Decide(id ID, index int, candles []model.Candle) Decision {
	if index < 0 || index >= len(candles) {
		return hold("index %d out of range", index)
	}

	switch id {
	case BuyAndHold:
		return decideBuyAndHold(index, candles)
	case SMACrossover:
		return decideCrossover("SMA", index, candles, func(c *model.Candle) (model.Opt, model.Opt) {
			return c.SMAShort, c.SMALong
		})
	case EMACrossover:
		return decideCrossover("EMA", index, candles, func(c *model.Candle) (model.Opt, model.Opt) {
			return c.EMAShort, c.EMALong
		})
	case MACD:
		return decideCrossover("MACD", index, candles, func(c *model.Candle) (model.Opt, model.Opt) {
			return c.MACD, c.MACDSignal
		})
	case RSI:
		return decideRSI(index, candles)
	case Bollinger:
		return decideBollinger(index, candles)
	case Stochastic:
		return decideStochastic(index, candles)
	case MeanReversion:
		return decideMeanReversion(index, candles)
	}
	return hold("unknown strategy %q", string(id))
}
