// Package portfolio holds the simulated portfolio ledger.
//
// A Ledger replays a decorated candle series one bar at a time, applying the
// active strategy's decision at each step with full-lot buys and full
// liquidation sells. It is designed for single-goroutine use; callers that
// share a Ledger must serialize access.
package portfolio

import (
	"errors"
	"math"

	"strategy-sim/internal/indicator"
	"strategy-sim/internal/model"
	"strategy-sim/internal/strategy"
)

// ErrEmptySeries is returned when a ledger is built over no candles.
var ErrEmptySeries = errors.New("portfolio: empty candle series")

// State is the ledger's position in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateAdvancing State = "advancing"
	StateAtEnd     State = "at_end"
	StateStepped   State = "stepped"
)

// DecideFunc produces a decision for index. strategy.Decide is the default.
type DecideFunc func(id strategy.ID, index int, candles []model.Candle) strategy.Decision

// StepResult describes one executed step.
type StepResult struct {
	Index    int               `json:"index"`
	Decision strategy.Decision `json:"decision"`
	Trade    *model.Trade      `json:"trade,omitempty"`
	Equity   model.EquityPoint `json:"equity"`
}

// Ledger is the execution state machine for one series and strategy.
type Ledger struct {
	candles  []model.Candle
	strategy strategy.ID
	decide   DecideFunc
	initial  float64

	cash   float64
	shares int64
	trades []model.Trade
	equity []model.EquityPoint
	index  int
	start  int
	state  State
}

// NewLedger builds a ledger over a decorated series and resets it.
func NewLedger(candles []model.Candle, id strategy.ID, initialCapital float64) (*Ledger, error) {
	if len(candles) == 0 {
		return nil, ErrEmptySeries
	}
	if initialCapital < 0 || math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) {
		return nil, errors.New("portfolio: initial capital must be a finite non-negative number")
	}
	l := &Ledger{
		candles:  candles,
		strategy: id,
		decide:   strategy.Decide,
		initial:  initialCapital,
	}
	l.Reset()
	return l, nil
}

// SetDecideFunc replaces the decision source. Intended for tests.
func (l *Ledger) SetDecideFunc(fn DecideFunc) {
	if fn == nil {
		fn = strategy.Decide
	}
	l.decide = fn
}

// WarmupStart returns the index stepping starts from. See indicator.WarmupStart.
func WarmupStart(candles []model.Candle) int {
	return indicator.WarmupStart(candles)
}

// Reset rewinds to the warm-up start with the initial capital, no position,
// an empty trade log and a single seed equity point.
func (l *Ledger) Reset() {
	l.start = WarmupStart(l.candles)
	l.index = l.start
	l.cash = l.initial
	l.shares = 0
	l.trades = l.trades[:0]
	l.equity = append(l.equity[:0], model.EquityPoint{
		Index:     l.start,
		Timestamp: l.candles[l.start].Timestamp,
		Value:     l.initial,
	})
	l.state = l.restingState()
}

// Step advances one candle. It returns false without touching any state when
// the ledger is already at the last candle.
func (l *Ledger) Step() (StepResult, bool) {
	next := l.index + 1
	if next > len(l.candles)-1 {
		return StepResult{}, false
	}
	l.state = StateAdvancing

	c := &l.candles[next]
	price := c.Close
	d := l.decide(l.strategy, next, l.candles)
	res := StepResult{Index: next, Decision: d}

	switch d.Action {
	case strategy.ActionBuy:
		if price > 0 && l.cash >= price {
			qty := int64(math.Floor(l.cash / price))
			if qty > 0 {
				l.cash -= float64(qty) * price
				l.shares += qty
				res.Trade = l.record(next, c, model.SideBuy, qty, d.Reason)
			}
		}
	case strategy.ActionSell:
		if l.shares > 0 {
			qty := l.shares
			l.cash += float64(qty) * price
			res.Trade = l.record(next, c, model.SideSell, qty, d.Reason)
			l.shares = 0
		}
	}

	res.Equity = model.EquityPoint{
		Index:     next,
		Timestamp: c.Timestamp,
		Value:     l.cash + float64(l.shares)*price,
	}
	l.equity = append(l.equity, res.Equity)
	l.index = next
	l.state = l.restingState()
	return res, true
}

func (l *Ledger) record(index int, c *model.Candle, side model.Side, qty int64, reason string) *model.Trade {
	l.trades = append(l.trades, model.Trade{
		Index:     index,
		Timestamp: c.Timestamp,
		Type:      side,
		Price:     c.Close,
		Quantity:  qty,
		Reason:    reason,
	})
	t := l.trades[len(l.trades)-1]
	return &t
}

func (l *Ledger) restingState() State {
	switch {
	case l.index >= len(l.candles)-1:
		return StateAtEnd
	case l.index == l.start:
		return StateIdle
	}
	return StateStepped
}

// AtEnd reports whether the current index is the last candle.
func (l *Ledger) AtEnd() bool { return l.index >= len(l.candles)-1 }

// State returns the lifecycle state.
func (l *Ledger) State() State { return l.state }

// Index returns the current candle index.
func (l *Ledger) Index() int { return l.index }

// StartIndex returns the warm-up start the ledger was reset to.
func (l *Ledger) StartIndex() int { return l.start }

// LastIndex returns the index of the final candle.
func (l *Ledger) LastIndex() int { return len(l.candles) - 1 }

// Cash returns uninvested capital.
func (l *Ledger) Cash() float64 { return l.cash }

// Shares returns the open position size.
func (l *Ledger) Shares() int64 { return l.shares }

// Strategy returns the strategy whose decisions are applied.
func (l *Ledger) Strategy() strategy.ID { return l.strategy }

// InitialCapital returns the cash restored on Reset.
func (l *Ledger) InitialCapital() float64 { return l.initial }

// Candles returns the decorated series. Callers must not modify it.
func (l *Ledger) Candles() []model.Candle { return l.candles }

// Value marks the portfolio to the current candle's close.
func (l *Ledger) Value() float64 {
	return l.cash + float64(l.shares)*l.candles[l.index].Close
}

// Trades returns a copy of the trade log.
func (l *Ledger) Trades() []model.Trade {
	cp := make([]model.Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// Equity returns a copy of the equity curve.
func (l *Ledger) Equity() []model.EquityPoint {
	cp := make([]model.EquityPoint, len(l.equity))
	copy(cp, l.equity)
	return cp
}

// Snapshot returns the portfolio part of the presentation snapshot.
func (l *Ledger) Snapshot() model.Snapshot {
	return model.Snapshot{
		Cash:           l.cash,
		Shares:         l.shares,
		PortfolioValue: l.Value(),
		CurrentIndex:   l.index,
		Strategy:       string(l.strategy),
		State:          string(l.state),
		StartIndex:     l.start,
		LastIndex:      len(l.candles) - 1,
	}
}
