package portfolio

import "strategy-sim/internal/model"

// Summary is the performance report for a run.
type Summary struct {
	InitialCapital float64 `json:"initialCapital"`
	FinalValue     float64 `json:"finalValue"`
	ReturnPct      float64 `json:"returnPct"`
	MaxDrawdownPct float64 `json:"maxDrawdownPct"`
	RealizedPnL    float64 `json:"realizedPnl"`
	TotalTrades    int     `json:"totalTrades"`
	RoundTrips     int     `json:"roundTrips"`
	WinningTrades  int     `json:"winningTrades"`
	WinRatePct     float64 `json:"winRatePct"`
	OpenShares     int64   `json:"openShares"`
	Steps          int     `json:"steps"`
}

// Summarize computes run statistics from a trade log and equity curve.
// Realized P&L is booked on each full liquidation against the cost of the
// shares bought since the previous one.
func Summarize(initialCapital float64, trades []model.Trade, equity []model.EquityPoint) Summary {
	s := Summary{
		InitialCapital: initialCapital,
		FinalValue:     initialCapital,
		TotalTrades:    len(trades),
	}
	if len(equity) > 0 {
		s.FinalValue = equity[len(equity)-1].Value
		s.Steps = len(equity) - 1
	}
	if initialCapital > 0 {
		s.ReturnPct = (s.FinalValue - initialCapital) / initialCapital * 100
	}

	var openQty int64
	var openCost float64
	for _, t := range trades {
		switch t.Type {
		case model.SideBuy:
			openQty += t.Quantity
			openCost += float64(t.Quantity) * t.Price
		case model.SideSell:
			pnl := float64(t.Quantity)*t.Price - openCost
			s.RealizedPnL += pnl
			s.RoundTrips++
			if pnl > 0 {
				s.WinningTrades++
			}
			openQty, openCost = 0, 0
		}
	}
	s.OpenShares = openQty
	if s.RoundTrips > 0 {
		s.WinRatePct = float64(s.WinningTrades) / float64(s.RoundTrips) * 100
	}

	peak := 0.0
	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := (peak - p.Value) / peak * 100; dd > s.MaxDrawdownPct {
				s.MaxDrawdownPct = dd
			}
		}
	}
	return s
}

// Summary reports the ledger's statistics so far.
func (l *Ledger) Summary() Summary {
	return Summarize(l.initial, l.trades, l.equity)
}
