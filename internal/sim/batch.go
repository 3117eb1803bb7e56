package sim

import (
	"context"
	"fmt"
	"sort"
	"time"

	"strategy-sim/internal/indicator"
	"strategy-sim/internal/logger"
	"strategy-sim/internal/metrics"
	"strategy-sim/internal/model"
	"strategy-sim/internal/portfolio"
	"strategy-sim/internal/strategy"
)

// Result is the outcome of replaying one strategy to the end of a series.
type Result struct {
	RunID    string              `json:"runId"`
	Dataset  string              `json:"dataset"`
	Strategy strategy.ID         `json:"strategy"`
	Summary  portfolio.Summary   `json:"summary"`
	Trades   []model.Trade       `json:"trades"`
	Equity   []model.EquityPoint `json:"equity"`
}

// Record converts r into a journal row.
func (r Result) Record(session string) model.RunRecord {
	return model.RunRecord{
		RunID:          r.RunID,
		Session:        session,
		Dataset:        r.Dataset,
		Strategy:       string(r.Strategy),
		InitialCapital: r.Summary.InitialCapital,
		FinalValue:     r.Summary.FinalValue,
		ReturnPct:      r.Summary.ReturnPct,
		MaxDrawdownPct: r.Summary.MaxDrawdownPct,
		Trades:         r.Summary.TotalTrades,
		Steps:          r.Summary.Steps,
	}
}

// RunToEnd decorates a validated series and replays one strategy over it
// without a timer.
func RunToEnd(candles []model.Candle, id strategy.ID, initialCapital float64) (Result, error) {
	return runDecorated(indicator.Decorate(candles), id, initialCapital)
}

func runDecorated(decorated []model.Candle, id strategy.ID, initialCapital float64) (Result, error) {
	if _, ok := strategy.ParseID(string(id)); !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
	}
	l, err := portfolio.NewLedger(decorated, id, initialCapital)
	if err != nil {
		return Result{}, fmt.Errorf("sim: run %s: %w", id, err)
	}
	for {
		if _, ok := l.Step(); !ok {
			break
		}
	}
	return Result{
		RunID:    logger.NewID(),
		Strategy: id,
		Summary:  l.Summary(),
		Trades:   l.Trades(),
		Equity:   l.Equity(),
	}, nil
}

// CompareAll replays every catalog strategy over the same series, decorated
// once, and returns results ordered by return (best first).
func CompareAll(candles []model.Candle, initialCapital float64) ([]Result, error) {
	decorated := indicator.Decorate(candles)
	results := make([]Result, 0, len(strategy.IDs))
	for _, id := range strategy.IDs {
		r, err := runDecorated(decorated, id, initialCapital)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Summary.ReturnPct > results[j].Summary.ReturnPct
	})
	return results, nil
}

// Batch runs CompareAll over stored datasets and journals the results.
type Batch struct {
	Store          model.DatasetStore
	Recorder       model.RunRecorder
	InitialCapital float64
	Metrics        *metrics.Metrics
}

// RunDataset compares every strategy over one stored dataset.
func (b *Batch) RunDataset(ctx context.Context, name string) ([]Result, error) {
	start := time.Now()
	candles, err := b.Store.LoadDataset(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("sim: batch load %q: %w", name, err)
	}
	results, err := CompareAll(candles, b.InitialCapital)
	if err != nil {
		return nil, fmt.Errorf("sim: batch %q: %w", name, err)
	}
	for i := range results {
		results[i].Dataset = name
		if b.Recorder != nil {
			r := results[i]
			if err := b.Recorder.RecordRun(ctx, r.Record("batch"), r.Trades, r.Equity); err != nil {
				return results, fmt.Errorf("sim: journal %s/%s: %w", name, r.Strategy, err)
			}
		}
		if b.Metrics != nil {
			b.Metrics.BatchRunsTotal.WithLabelValues(string(results[i].Strategy)).Inc()
		}
	}
	if b.Metrics != nil {
		b.Metrics.BatchDur.Observe(time.Since(start).Seconds())
	}
	return results, nil
}

// RunAll compares strategies over every stored dataset. A failing dataset is
// reported and skipped.
func (b *Batch) RunAll(ctx context.Context) (map[string][]Result, error) {
	names, err := b.Store.ListDatasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("sim: batch list: %w", err)
	}
	out := make(map[string][]Result, len(names))
	var firstErr error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		results, err := b.RunDataset(ctx, name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out[name] = results
	}
	return out, firstErr
}
