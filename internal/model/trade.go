package model

// Side is the direction of an executed trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one ledger fill. Quantity is always a whole number of units.
type Trade struct {
	Index     int     `json:"index"`
	Timestamp string  `json:"timestamp"`
	Type      Side    `json:"type"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
	Reason    string  `json:"reason"`
}

// EquityPoint is one mark-to-market valuation: cash + shares × close.
type EquityPoint struct {
	Index     int     `json:"index"`
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Sample is one point of an indicator series, index-aligned with the candles.
// Secondary fields are only populated by multi-line indicators.
type Sample struct {
	Timestamp string `json:"timestamp"`
	Value     Opt    `json:"value"`
	Signal    Opt    `json:"signal"`
	Upper     Opt    `json:"upper"`
	Lower     Opt    `json:"lower"`
	Histogram Opt    `json:"histogram"`
}

// Snapshot is the synchronous state view handed to the presentation layer.
type Snapshot struct {
	Cash           float64 `json:"cash"`
	Shares         int64   `json:"shares"`
	PortfolioValue float64 `json:"portfolioValue"`
	CurrentIndex   int     `json:"currentIndex"`
	IsPlaying      bool    `json:"isPlaying"`

	Strategy   string `json:"strategy"`
	State      string `json:"state"`
	StartIndex int    `json:"startIndex"`
	LastIndex  int    `json:"lastIndex"`
	SpeedMs    int    `json:"speedMs"`
	Dataset    string `json:"dataset,omitempty"`
}
