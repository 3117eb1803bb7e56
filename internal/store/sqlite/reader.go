package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"strategy-sim/internal/model"
)

// DatasetInfo is the catalog row for one stored dataset.
type DatasetInfo struct {
	Name      string `json:"name"`
	Candles   int    `json:"candles"`
	FirstTS   string `json:"firstTimestamp"`
	LastTS    string `json:"lastTimestamp"`
	UpdatedAt int64  `json:"updatedAt"`
}

// LoadDataset reads the named dataset in stored (chronological) order.
func (s *Store) LoadDataset(ctx context.Context, name string) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE dataset = ?
		ORDER BY seq ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("dataset %q: %w", name, ErrNotFound)
	}
	return candles, nil
}

// ListDatasets returns stored dataset names in alphabetical order.
func (s *Store) ListDatasets(ctx context.Context) ([]string, error) {
	infos, err := s.Datasets(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, d := range infos {
		names[i] = d.Name
	}
	return names, nil
}

// Datasets returns the dataset catalog.
func (s *Store) Datasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, candles, first_ts, last_ts, updated_at
		FROM datasets
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query datasets: %w", err)
	}
	defer rows.Close()

	out := []DatasetInfo{}
	for rows.Next() {
		var d DatasetInfo
		if err := rows.Scan(&d.Name, &d.Candles, &d.FirstTS, &d.LastTS, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan datasets: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Source adapts a stored dataset to dataset.Source.
type Source struct {
	Store   *Store
	Dataset string
}

func (s Source) Name() string { return s.Dataset }

func (s Source) Load(ctx context.Context) ([]model.Candle, error) {
	return s.Store.LoadDataset(ctx, s.Dataset)
}

// IsNotFound reports whether err means a missing dataset or run.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
