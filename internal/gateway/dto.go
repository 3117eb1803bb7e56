package gateway

import (
	"strategy-sim/internal/metrics"
	"strategy-sim/internal/model"
	"strategy-sim/internal/portfolio"
	"strategy-sim/internal/strategy"
)

// StateResponse is the body of GET /api/state and of every command reply.
type StateResponse struct {
	State    model.Snapshot   `json:"state"`
	Strategy *strategy.Config `json:"strategy,omitempty"`
	Seq      int64            `json:"seq"`
}

// StepResponse is the body of POST /api/step.
type StepResponse struct {
	Stepped bool                  `json:"stepped"`
	Result  *portfolio.StepResult `json:"result,omitempty"`
	State   model.Snapshot        `json:"state"`
}

// CandlesResponse is the body of GET /api/candles.
type CandlesResponse struct {
	Total   int            `json:"total"`
	Offset  int            `json:"offset"`
	Candles []model.Candle `json:"candles"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	metrics.Report
	WSClients int   `json:"ws_clients"`
	Seq       int64 `json:"seq"`
	Playing   bool  `json:"playing"`
}

// RunDetail is the body of GET /api/runs/detail.
type RunDetail struct {
	RunID  string              `json:"runId"`
	Trades []model.Trade       `json:"trades"`
	Equity []model.EquityPoint `json:"equity"`
}

// SpeedRequest is the body of POST /api/speed.
type SpeedRequest struct {
	Ms int `json:"ms"`
}

// StrategyRequest is the body of POST /api/strategy.
type StrategyRequest struct {
	Strategy string `json:"strategy"`
}

// DatasetRequest is the JSON body of POST /api/dataset. Exactly one of Name
// (a stored dataset) or URL must be set.
type DatasetRequest struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Label string `json:"label"`
	Save  bool   `json:"save"`
}

type errorResponse struct {
	Error string `json:"error"`
	Row   int    `json:"row,omitempty"`
}
