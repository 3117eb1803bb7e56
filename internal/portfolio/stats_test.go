package portfolio

import (
	"math"
	"testing"

	"strategy-sim/internal/model"
)

func TestSummarize_RoundTripsAndDrawdown(t *testing.T) {
	trades := []model.Trade{
		{Index: 1, Type: model.SideBuy, Price: 10, Quantity: 100},
		{Index: 3, Type: model.SideSell, Price: 12, Quantity: 100},
		{Index: 4, Type: model.SideBuy, Price: 12, Quantity: 100},
		{Index: 6, Type: model.SideSell, Price: 11, Quantity: 100},
	}
	equity := []model.EquityPoint{
		{Value: 1000}, {Value: 1000}, {Value: 1100}, {Value: 1200},
		{Value: 1200}, {Value: 900}, {Value: 1100},
	}

	s := Summarize(1000, trades, equity)
	if s.RoundTrips != 2 || s.WinningTrades != 1 {
		t.Errorf("round trips=%d wins=%d, want 2/1", s.RoundTrips, s.WinningTrades)
	}
	// +200 then -100
	if math.Abs(s.RealizedPnL-100) > 1e-9 {
		t.Errorf("realized pnl %.2f, want 100", s.RealizedPnL)
	}
	// peak 1200 → trough 900 = 25%
	if math.Abs(s.MaxDrawdownPct-25) > 1e-9 {
		t.Errorf("max drawdown %.2f, want 25", s.MaxDrawdownPct)
	}
	if math.Abs(s.ReturnPct-10) > 1e-9 {
		t.Errorf("return %.2f, want 10", s.ReturnPct)
	}
	if s.Steps != 6 || s.WinRatePct != 50 {
		t.Errorf("steps=%d winrate=%.1f", s.Steps, s.WinRatePct)
	}
}

func TestSummarize_OpenPosition(t *testing.T) {
	trades := []model.Trade{{Index: 2, Type: model.SideBuy, Price: 5, Quantity: 20}}
	s := Summarize(100, trades, []model.EquityPoint{{Value: 100}, {Value: 120}})
	if s.OpenShares != 20 || s.RoundTrips != 0 || s.RealizedPnL != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
}
