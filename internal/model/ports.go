package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the simulation from concrete storage and transport
// implementations (SQLite, Redis, WebSocket).

// DatasetStore persists validated candle series by name.
type DatasetStore interface {
	// SaveDataset replaces the named dataset with candles.
	SaveDataset(ctx context.Context, name string, candles []Candle) error

	// LoadDataset returns the named dataset in chronological order.
	LoadDataset(ctx context.Context, name string) ([]Candle, error)

	// ListDatasets returns the stored dataset names.
	ListDatasets(ctx context.Context) ([]string, error)
}

// RunRecord summarizes one completed or in-progress simulation run.
type RunRecord struct {
	RunID          string  `json:"runId"`
	Session        string  `json:"session"`
	Dataset        string  `json:"dataset"`
	Strategy       string  `json:"strategy"`
	InitialCapital float64 `json:"initialCapital"`
	FinalValue     float64 `json:"finalValue"`
	ReturnPct      float64 `json:"returnPct"`
	MaxDrawdownPct float64 `json:"maxDrawdownPct"`
	Trades         int     `json:"trades"`
	Steps          int     `json:"steps"`
}

// RunRecorder journals runs and their fills.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord, trades []Trade, equity []EquityPoint) error
	RecordTrade(ctx context.Context, runID string, trade Trade) error
}

// EventPublisher pushes simulation events to an external consumer.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
