// cmd/backtest runs every strategy (or one) over a candle series from a CSV or
// JSON file, or from a dataset stored in SQLite, and prints a comparison.
//
// Usage:
//
//	go run ./cmd/backtest --file=data/spy.csv
//	go run ./cmd/backtest --dataset=spy --db=data/sim.db --strategy=rsi --trades
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"strategy-sim/internal/dataset"
	"strategy-sim/internal/logger"
	"strategy-sim/internal/sim"
	sqlitestore "strategy-sim/internal/store/sqlite"
	"strategy-sim/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	file := flag.String("file", "", "CSV or JSON candle file")
	name := flag.String("dataset", "", "Stored dataset name (requires --db)")
	dbPath := flag.String("db", "data/sim.db", "Path to SQLite database")
	strat := flag.String("strategy", "", "Run a single strategy instead of comparing all")
	capital := flag.Float64("capital", sim.DefaultInitialCapital, "Initial capital")
	showTrades := flag.Bool("trades", false, "Print the trade log of each run")
	journal := flag.Bool("journal", false, "Record the runs in the SQLite run journal")
	asJSON := flag.Bool("json", false, "Print results as JSON")
	flag.Parse()

	if (*file == "") == (*name == "") {
		log.Fatal("[backtest] exactly one of --file or --dataset is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var store *sqlitestore.Store
	if *name != "" || *journal {
		var err error
		store, err = sqlitestore.New(sqlitestore.Config{DBPath: *dbPath})
		if err != nil {
			log.Fatalf("[backtest] sqlite open failed: %v", err)
		}
		defer store.Close()
	}

	var src dataset.Source = dataset.FileSource{Path: *file}
	if *name != "" {
		src = sqlitestore.Source{Store: store, Dataset: *name}
	}
	candles, err := dataset.Load(ctx, src)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	var results []sim.Result
	if *strat != "" {
		id, ok := strategy.ParseID(*strat)
		if !ok {
			log.Fatalf("[backtest] unknown strategy %q (known: %v)", *strat, strategy.IDs)
		}
		r, err := sim.RunToEnd(candles, id, *capital)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		results = []sim.Result{r}
	} else {
		results, err = sim.CompareAll(candles, *capital)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
	}

	session := "backtest-" + logger.NewID()[:8]
	for i := range results {
		results[i].Dataset = src.Name()
		if *journal {
			r := results[i]
			if err := store.RecordRun(ctx, r.Record(session), r.Trades, r.Equity); err != nil {
				log.Fatalf("[backtest] journal: %v", err)
			}
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(results)
		return
	}

	fmt.Println()
	fmt.Printf("Dataset %s: %d candles, capital %.2f\n\n", src.Name(), len(candles), *capital)
	fmt.Printf("%-16s %12s %9s %9s %7s %8s\n", "STRATEGY", "FINAL", "RETURN%", "MAXDD%", "TRADES", "WIN%")
	for _, r := range results {
		s := r.Summary
		fmt.Printf("%-16s %12.2f %9.2f %9.2f %7d %8.1f\n",
			r.Strategy, s.FinalValue, s.ReturnPct, s.MaxDrawdownPct, s.TotalTrades, s.WinRatePct)
	}

	if *showTrades {
		for _, r := range results {
			fmt.Printf("\n%s trades:\n", r.Strategy)
			for _, t := range r.Trades {
				fmt.Printf("  #%-5d %s %-4s %6d @ %10.2f  %s\n", t.Index, t.Timestamp, t.Type, t.Quantity, t.Price, t.Reason)
			}
		}
	}
	if *journal {
		fmt.Printf("\nJournaled %d runs under session %s\n", len(results), session)
	}
}
