package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"strategy-sim/internal/model"
)

// RecordRun upserts a run summary. When trades or equity are non-nil they
// replace whatever was journaled for the run before; nil leaves existing
// rows alone so incrementally recorded fills survive.
func (s *Store) RecordRun(ctx context.Context, run model.RunRecord, trades []model.Trade, equity []model.EquityPoint) error {
	err := s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO runs (run_id, session, dataset, strategy, initial_capital, final_value,
				return_pct, max_drawdown_pct, trades, steps, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.RunID, run.Session, run.Dataset, run.Strategy, run.InitialCapital, run.FinalValue,
			run.ReturnPct, run.MaxDrawdownPct, run.Trades, run.Steps, time.Now().Unix())
		if err != nil {
			return err
		}

		if trades != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE run_id = ?`, run.RunID); err != nil {
				return err
			}
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO trades (run_id, idx, ts, side, price, qty, reason)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, t := range trades {
				if _, err := stmt.ExecContext(ctx, run.RunID, t.Index, t.Timestamp, string(t.Type), t.Price, t.Quantity, t.Reason); err != nil {
					return err
				}
			}
		}

		if equity != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM equity WHERE run_id = ?`, run.RunID); err != nil {
				return err
			}
			stmt, err := tx.PrepareContext(ctx, `INSERT INTO equity (run_id, idx, ts, value) VALUES (?, ?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, p := range equity {
				if _, err := stmt.ExecContext(ctx, run.RunID, p.Index, p.Timestamp, p.Value); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite record run %s: %w", run.RunID, err)
	}
	return nil
}

// RecordTrade persists a single fill for runID.
func (s *Store) RecordTrade(ctx context.Context, runID string, t model.Trade) error {
	err := s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO trades (run_id, idx, ts, side, price, qty, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, runID, t.Index, t.Timestamp, string(t.Type), t.Price, t.Quantity, t.Reason)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite record trade: %w", err)
	}
	return nil
}

// RunFilter narrows Runs. Zero values match everything.
type RunFilter struct {
	Dataset  string
	Strategy string
	Limit    int
}

// Runs returns journaled runs, newest first.
func (s *Store) Runs(ctx context.Context, f RunFilter) ([]model.RunRecord, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, session, dataset, strategy, initial_capital, final_value,
			return_pct, max_drawdown_pct, trades, steps
		FROM runs
		WHERE (? = '' OR dataset = ?) AND (? = '' OR strategy = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, f.Dataset, f.Dataset, f.Strategy, f.Strategy, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	out := []model.RunRecord{}
	for rows.Next() {
		var r model.RunRecord
		if err := rows.Scan(&r.RunID, &r.Session, &r.Dataset, &r.Strategy, &r.InitialCapital, &r.FinalValue,
			&r.ReturnPct, &r.MaxDrawdownPct, &r.Trades, &r.Steps); err != nil {
			return nil, fmt.Errorf("sqlite scan runs: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunTrades returns the journaled fills of one run in index order.
func (s *Store) RunTrades(ctx context.Context, runID string) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, ts, side, price, qty, COALESCE(reason, '')
		FROM trades
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	out := []model.Trade{}
	for rows.Next() {
		var t model.Trade
		var side string
		if err := rows.Scan(&t.Index, &t.Timestamp, &side, &t.Price, &t.Quantity, &t.Reason); err != nil {
			return nil, fmt.Errorf("sqlite scan trades: %w", err)
		}
		t.Type = model.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// RunEquity returns the journaled equity curve of one run.
func (s *Store) RunEquity(ctx context.Context, runID string) ([]model.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, ts, value FROM equity WHERE run_id = ? ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query equity: %w", err)
	}
	defer rows.Close()

	out := []model.EquityPoint{}
	for rows.Next() {
		var p model.EquityPoint
		if err := rows.Scan(&p.Index, &p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("sqlite scan equity: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
