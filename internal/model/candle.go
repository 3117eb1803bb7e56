package model

import "time"

// Candle is one OHLCV bar. Timestamp is kept as the ISO-8601 string supplied
// by the data source; chronological order is guaranteed by the loader.
//
// The indicator fields are filled by indicator.Decorate. A decorated series is
// never patched in place: a reload produces a new slice.
type Candle struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`

	SMAShort      Opt `json:"smaShort"`
	SMALong       Opt `json:"smaLong"`
	EMAShort      Opt `json:"emaShort"`
	EMALong       Opt `json:"emaLong"`
	MACD          Opt `json:"macd"`
	MACDSignal    Opt `json:"macdSignal"`
	MACDHistogram Opt `json:"macdHistogram"`
	BollUpper     Opt `json:"bollUpper"`
	BollMiddle    Opt `json:"bollMiddle"`
	BollLower     Opt `json:"bollLower"`
	StochK        Opt `json:"stochK"`
	StochD        Opt `json:"stochD"`
	RSI           Opt `json:"rsi"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 forms accepted in datasets.
func ParseTimestamp(s string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// Closes extracts the close prices of a series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// Highs extracts the high prices of a series.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].High
	}
	return out
}

// Lows extracts the low prices of a series.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Low
	}
	return out
}
