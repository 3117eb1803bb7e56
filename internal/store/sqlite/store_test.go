package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"strategy-sim/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "sim.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCandles() []model.Candle {
	return []model.Candle{
		{Timestamp: "2024-01-02", Open: 100, High: 105, Low: 99, Close: 104, Volume: 1200},
		{Timestamp: "2024-01-03", Open: 104, High: 106, Low: 101, Close: 102.5, Volume: 900},
		{Timestamp: "2024-01-04", Open: 102, High: 103, Low: 98, Close: 99, Volume: 1500},
	}
}

func TestStore_DatasetRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	var commits int
	s.OnCommit = func(time.Duration) { commits++ }

	if err := s.SaveDataset(ctx, "spy", sampleCandles()); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadDataset(ctx, "spy")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1].Close != 102.5 || got[2].Timestamp != "2024-01-04" {
		t.Errorf("unexpected candles %+v", got)
	}
	if commits != 1 {
		t.Errorf("expected one commit, got %d", commits)
	}

	// Saving again replaces, never appends.
	if err := s.SaveDataset(ctx, "spy", sampleCandles()[:2]); err != nil {
		t.Fatal(err)
	}
	got, _ = s.LoadDataset(ctx, "spy")
	if len(got) != 2 {
		t.Errorf("expected replacement with 2 candles, got %d", len(got))
	}

	infos, err := s.Datasets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Candles != 2 || infos[0].LastTS != "2024-01-03" {
		t.Errorf("unexpected catalog %+v", infos)
	}
}

func TestStore_MissingDataset(t *testing.T) {
	s := openStore(t)
	_, err := s.LoadDataset(context.Background(), "nope")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.DeleteDataset(context.Background(), "nope"); !IsNotFound(err) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for _, name := range []string{"qqq", "aapl"} {
		if err := s.SaveDataset(ctx, name, sampleCandles()); err != nil {
			t.Fatal(err)
		}
	}
	names, err := s.ListDatasets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "aapl" || names[1] != "qqq" {
		t.Errorf("unexpected names %v", names)
	}
	if err := s.DeleteDataset(ctx, "aapl"); err != nil {
		t.Fatal(err)
	}
	names, _ = s.ListDatasets(ctx)
	if len(names) != 1 {
		t.Errorf("expected 1 dataset after delete, got %v", names)
	}
}

func TestStore_Source(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.SaveDataset(ctx, "spy", sampleCandles()); err != nil {
		t.Fatal(err)
	}
	src := Source{Store: s, Dataset: "spy"}
	candles, err := src.Load(ctx)
	if err != nil || len(candles) != 3 || src.Name() != "spy" {
		t.Fatalf("source load: %v (%d candles)", err, len(candles))
	}
}

func TestJournal_RecordRunAndTrades(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	run := model.RunRecord{RunID: "r1", Session: "s1", Dataset: "spy", Strategy: "rsi",
		InitialCapital: 10000, FinalValue: 10500, ReturnPct: 5, Trades: 2, Steps: 40}
	trades := []model.Trade{
		{Index: 21, Timestamp: "2024-02-01", Type: model.SideBuy, Price: 100, Quantity: 100, Reason: "RSI 28.00 < 30"},
		{Index: 30, Timestamp: "2024-02-10", Type: model.SideSell, Price: 105, Quantity: 100, Reason: "RSI 71.00 > 70"},
	}
	equity := []model.EquityPoint{{Index: 20, Value: 10000}, {Index: 21, Value: 10000}}

	if err := s.RecordRun(ctx, run, trades, equity); err != nil {
		t.Fatal(err)
	}
	got, err := s.RunTrades(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Type != model.SideSell || got[0].Reason != trades[0].Reason {
		t.Errorf("unexpected trades %+v", got)
	}
	eq, _ := s.RunEquity(ctx, "r1")
	if len(eq) != 2 {
		t.Errorf("expected 2 equity points, got %d", len(eq))
	}

	// Updating the summary with nil slices keeps the journaled fills.
	run.FinalValue = 10600
	if err := s.RecordRun(ctx, run, nil, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = s.RunTrades(ctx, "r1")
	if len(got) != 2 {
		t.Errorf("fills lost on summary update: %d", len(got))
	}

	runs, err := s.Runs(ctx, RunFilter{Strategy: "rsi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].FinalValue != 10600 {
		t.Errorf("unexpected runs %+v", runs)
	}
	if runs, _ := s.Runs(ctx, RunFilter{Strategy: "macd"}); len(runs) != 0 {
		t.Errorf("filter should exclude other strategies, got %d", len(runs))
	}
}

func TestJournal_RecordTradeIncremental(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tr := model.Trade{Index: 5, Timestamp: "2024-01-05", Type: model.SideBuy, Price: 50, Quantity: 20}
	if err := s.RecordTrade(ctx, "r2", tr); err != nil {
		t.Fatal(err)
	}
	// Same index twice is an upsert, not a duplicate fill.
	if err := s.RecordTrade(ctx, "r2", tr); err != nil {
		t.Fatal(err)
	}
	got, _ := s.RunTrades(ctx, "r2")
	if len(got) != 1 || got[0].Quantity != 20 {
		t.Errorf("unexpected trades %+v", got)
	}
}
