package indicator

import "strategy-sim/internal/model"

// Decorate computes every pipeline indicator with the fixed parameters and
// returns a new decorated copy of candles. The input is not modified.
func Decorate(candles []model.Candle) []model.Candle {
	out := make([]model.Candle, len(candles))
	copy(out, candles)
	if len(out) == 0 {
		return out
	}

	closes := model.Closes(candles)
	smaShort := SMA(closes, ShortWindow)
	smaLong := SMA(closes, LongWindow)
	emaShort := EMA(closes, ShortWindow)
	emaLong := EMA(closes, LongWindow)
	macd := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	boll := Bollinger(closes, BollWindow, BollK)
	stoch := Stochastic(model.Highs(candles), model.Lows(candles), closes, StochKPeriod, StochDPeriod)
	rsi := RSI(closes, RSIWindow)

	for i := range out {
		c := &out[i]
		c.SMAShort = smaShort[i]
		c.SMALong = smaLong[i]
		c.EMAShort = emaShort[i]
		c.EMALong = emaLong[i]
		c.MACD = macd.Line[i]
		c.MACDSignal = macd.Signal[i]
		c.MACDHistogram = macd.Histogram[i]
		c.BollUpper = boll.Upper[i]
		c.BollMiddle = boll.Middle[i]
		c.BollLower = boll.Lower[i]
		c.StochK = stoch.K[i]
		c.StochD = stoch.D[i]
		c.RSI = rsi[i]
	}
	return out
}

// WarmupStart returns the first index where both the short and long SMA are
// defined, or 0 if there is none. The ledger starts stepping from here for
// every strategy, even those whose own indicators need a longer warm-up.
func WarmupStart(candles []model.Candle) int {
	for i := range candles {
		if candles[i].SMAShort.Valid && candles[i].SMALong.Valid {
			return i
		}
	}
	return 0
}

// Series is the set of chart-ready indicator series derived from a decorated
// candle series.
type Series struct {
	SMAShort   []model.Sample `json:"smaShort"`
	SMALong    []model.Sample `json:"smaLong"`
	EMAShort   []model.Sample `json:"emaShort"`
	EMALong    []model.Sample `json:"emaLong"`
	MACD       []model.Sample `json:"macd"`
	Bollinger  []model.Sample `json:"bollinger"`
	Stochastic []model.Sample `json:"stochastic"`
	RSI        []model.Sample `json:"rsi"`
}

// BuildSeries extracts per-indicator samples from a decorated series.
func BuildSeries(candles []model.Candle) Series {
	n := len(candles)
	s := Series{
		SMAShort:   make([]model.Sample, n),
		SMALong:    make([]model.Sample, n),
		EMAShort:   make([]model.Sample, n),
		EMALong:    make([]model.Sample, n),
		MACD:       make([]model.Sample, n),
		Bollinger:  make([]model.Sample, n),
		Stochastic: make([]model.Sample, n),
		RSI:        make([]model.Sample, n),
	}
	for i, c := range candles {
		ts := c.Timestamp
		s.SMAShort[i] = model.Sample{Timestamp: ts, Value: c.SMAShort}
		s.SMALong[i] = model.Sample{Timestamp: ts, Value: c.SMALong}
		s.EMAShort[i] = model.Sample{Timestamp: ts, Value: c.EMAShort}
		s.EMALong[i] = model.Sample{Timestamp: ts, Value: c.EMALong}
		s.MACD[i] = model.Sample{Timestamp: ts, Value: c.MACD, Signal: c.MACDSignal, Histogram: c.MACDHistogram}
		s.Bollinger[i] = model.Sample{Timestamp: ts, Value: c.BollMiddle, Upper: c.BollUpper, Lower: c.BollLower}
		s.Stochastic[i] = model.Sample{Timestamp: ts, Value: c.StochK, Signal: c.StochD}
		s.RSI[i] = model.Sample{Timestamp: ts, Value: c.RSI}
	}
	return s
}

// Readout is the indicator panel for a single index.
type Readout struct {
	Index     int     `json:"index"`
	Timestamp string  `json:"timestamp"`
	Close     float64 `json:"close"`

	SMAShort      model.Opt `json:"smaShort"`
	SMALong       model.Opt `json:"smaLong"`
	EMAShort      model.Opt `json:"emaShort"`
	EMALong       model.Opt `json:"emaLong"`
	MACD          model.Opt `json:"macd"`
	MACDSignal    model.Opt `json:"macdSignal"`
	MACDHistogram model.Opt `json:"macdHistogram"`
	BollUpper     model.Opt `json:"bollUpper"`
	BollMiddle    model.Opt `json:"bollMiddle"`
	BollLower     model.Opt `json:"bollLower"`
	StochK        model.Opt `json:"stochK"`
	StochD        model.Opt `json:"stochD"`

	// RSI shows RSINeutral while RSIWarmup is set.
	RSI       float64 `json:"rsi"`
	RSIWarmup bool    `json:"rsiWarmup"`
}

// ReadoutAt returns the readout for index i. ok is false when i is out of range.
func ReadoutAt(candles []model.Candle, i int) (Readout, bool) {
	if i < 0 || i >= len(candles) {
		return Readout{}, false
	}
	c := candles[i]
	return Readout{
		Index:         i,
		Timestamp:     c.Timestamp,
		Close:         c.Close,
		SMAShort:      c.SMAShort,
		SMALong:       c.SMALong,
		EMAShort:      c.EMAShort,
		EMALong:       c.EMALong,
		MACD:          c.MACD,
		MACDSignal:    c.MACDSignal,
		MACDHistogram: c.MACDHistogram,
		BollUpper:     c.BollUpper,
		BollMiddle:    c.BollMiddle,
		BollLower:     c.BollLower,
		StochK:        c.StochK,
		StochD:        c.StochD,
		RSI:           c.RSI.Or(RSINeutral),
		RSIWarmup:     !c.RSI.Valid,
	}, true
}
