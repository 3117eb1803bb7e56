// Package sim wires the indicator pipeline, decision engine, ledger and
// playback controller into one interactive simulation session.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"strategy-sim/internal/bus"
	"strategy-sim/internal/dataset"
	"strategy-sim/internal/indicator"
	"strategy-sim/internal/logger"
	"strategy-sim/internal/metrics"
	"strategy-sim/internal/model"
	"strategy-sim/internal/playback"
	"strategy-sim/internal/portfolio"
	"strategy-sim/internal/strategy"
)

var (
	// ErrStepInFlight is returned when a step request arrives while another
	// step is executing. The request is dropped, not queued.
	ErrStepInFlight = errors.New("sim: step already in flight")
	// ErrNoDataset is returned by operations that need a loaded series.
	ErrNoDataset = errors.New("sim: no dataset loaded")
	// ErrUnknownStrategy is returned for IDs outside the strategy catalog.
	ErrUnknownStrategy = errors.New("sim: unknown strategy")
)

// DefaultInitialCapital is used when Options leave it unset.
const DefaultInitialCapital = 10000.0

// Options configures a Session.
type Options struct {
	InitialCapital float64
	Strategy       strategy.ID
	Speed          time.Duration

	// Bus receives every session event. Optional.
	Bus *bus.Bus
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Health is optional.
	Health *metrics.HealthStatus
}

// Session is one interactive simulation: a dataset, a strategy, a ledger and
// a playback driver. All methods are safe for concurrent use.
type Session struct {
	id      string
	initial float64
	ctrl    *playback.Controller
	bus     *bus.Bus
	m       *metrics.Metrics
	health  *metrics.HealthStatus

	inflight  atomic.Bool
	playEpoch atomic.Uint64

	mu       sync.RWMutex
	epoch    uint64
	dataset  string
	candles  []model.Candle
	series   *indicator.Series
	ledger   *portfolio.Ledger
	strategy strategy.ID
	runID    string
}

// NewSession creates an empty session. A dataset must be loaded before it can
// step.
func NewSession(opts Options) (*Session, error) {
	if opts.InitialCapital == 0 {
		opts.InitialCapital = DefaultInitialCapital
	}
	if opts.InitialCapital < 0 {
		return nil, fmt.Errorf("sim: initial capital must be positive, got %g", opts.InitialCapital)
	}
	if opts.Strategy == "" {
		opts.Strategy = strategy.SMACrossover
	}
	if _, ok := strategy.ParseID(string(opts.Strategy)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
	}

	s := &Session{
		id:       logger.NewID(),
		initial:  opts.InitialCapital,
		bus:      opts.Bus,
		m:        opts.Metrics,
		health:   opts.Health,
		strategy: opts.Strategy,
	}
	s.ctrl = playback.New(s.tick, opts.Speed)
	s.ctrl.OnStop = s.onDriverStop
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Context returns ctx annotated with the session and current run IDs.
func (s *Session) Context(ctx context.Context) context.Context {
	s.mu.RLock()
	runID := s.runID
	s.mu.RUnlock()
	ctx = logger.WithSessionID(ctx, s.id)
	if runID != "" {
		ctx = logger.WithRunID(ctx, runID)
	}
	return ctx
}

// LoadDataset validates and decorates candles and swaps them in, resetting the
// portfolio. On failure the previous series and portfolio are untouched and
// the error is a *dataset.LoadError.
func (s *Session) LoadDataset(name string, candles []model.Candle) error {
	prepared, err := dataset.Prepare(name, candles)
	if err != nil {
		s.loadFailed(name, err)
		return err
	}
	return s.install(name, prepared)
}

// LoadFrom fetches, validates and installs a dataset from src.
func (s *Session) LoadFrom(ctx context.Context, src dataset.Source) error {
	candles, err := dataset.Load(ctx, src)
	if err != nil {
		s.loadFailed(src.Name(), err)
		return err
	}
	return s.install(src.Name(), candles)
}

func (s *Session) loadFailed(name string, err error) {
	if s.m != nil {
		s.m.DatasetLoadErrors.Inc()
	}
	log.Printf("[sim] session=%s dataset %q rejected: %v", s.id, name, err)
}

// install builds everything off-lock, then stops the driver and swaps.
func (s *Session) install(name string, prepared []model.Candle) error {
	decorated := indicator.Decorate(prepared)

	s.mu.RLock()
	id := s.strategy
	s.mu.RUnlock()

	ledger, err := portfolio.NewLedger(decorated, id, s.initial)
	if err != nil {
		err = &dataset.LoadError{Source: name, Msg: "build ledger", Err: err}
		s.loadFailed(name, err)
		return err
	}

	s.ctrl.Pause()

	s.mu.Lock()
	if s.strategy != id {
		// SetStrategy ran while decorating.
		ledger, _ = portfolio.NewLedger(decorated, s.strategy, s.initial)
	}
	s.epoch++
	s.dataset = name
	s.candles = decorated
	s.series = nil
	s.ledger = ledger
	s.runID = logger.NewID()
	ev := s.eventLocked(model.EventLoad)
	s.mu.Unlock()

	if s.m != nil {
		s.m.DatasetLoads.Inc()
		s.m.DatasetCandles.Set(float64(len(decorated)))
	}
	if s.health != nil {
		s.health.SetDataset(name)
	}
	log.Printf("[sim] session=%s loaded %q: %d candles, warm-up start %d", s.id, name, len(decorated), ledger.StartIndex())
	s.emit(ev)
	return nil
}

// SetStrategy switches the active strategy and performs a full reset.
func (s *Session) SetStrategy(raw string) error {
	id, ok := strategy.ParseID(raw)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, raw)
	}
	s.ctrl.Pause()

	s.mu.Lock()
	s.strategy = id
	if s.ledger == nil {
		s.mu.Unlock()
		return nil
	}
	ledger, err := portfolio.NewLedger(s.candles, id, s.initial)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("sim: set strategy: %w", err)
	}
	s.epoch++
	s.ledger = ledger
	s.runID = logger.NewID()
	ev := s.eventLocked(model.EventReset)
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// Reset stops playback and rewinds the portfolio to the warm-up start.
func (s *Session) Reset() error {
	s.ctrl.Pause()

	s.mu.Lock()
	if s.ledger == nil {
		s.mu.Unlock()
		return ErrNoDataset
	}
	s.epoch++
	s.ledger.Reset()
	s.runID = logger.NewID()
	ev := s.eventLocked(model.EventReset)
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// Step executes one manual step. ok is false when the ledger was already at
// the last candle.
func (s *Session) Step() (res portfolio.StepResult, ok bool, err error) {
	if !s.inflight.CompareAndSwap(false, true) {
		if s.m != nil {
			s.m.DroppedSteps.Inc()
		}
		return res, false, ErrStepInFlight
	}
	defer s.inflight.Store(false)

	s.mu.Lock()
	if s.ledger == nil {
		s.mu.Unlock()
		return res, false, ErrNoDataset
	}
	res, ok, evs := s.stepLocked()
	s.mu.Unlock()

	s.emit(evs...)
	return res, ok, nil
}

// tick is the playback driver's step function.
func (s *Session) tick() bool {
	if !s.inflight.CompareAndSwap(false, true) {
		if s.m != nil {
			s.m.DroppedSteps.Inc()
		}
		return false
	}
	defer s.inflight.Store(false)

	s.mu.Lock()
	if s.ledger == nil || s.playEpoch.Load() != s.epoch {
		s.mu.Unlock()
		return true
	}
	_, _, evs := s.stepLocked()
	atEnd := s.ledger.AtEnd()
	s.mu.Unlock()

	s.emit(evs...)
	return atEnd
}

func (s *Session) stepLocked() (portfolio.StepResult, bool, []model.Event) {
	start := time.Now()
	res, ok := s.ledger.Step()
	if !ok {
		return res, false, nil
	}

	if s.m != nil {
		s.m.StepsTotal.Inc()
		s.m.StepDur.Observe(time.Since(start).Seconds())
		if res.Trade != nil {
			s.m.TradesTotal.WithLabelValues(string(res.Trade.Type)).Inc()
		}
		s.m.PortfolioValue.Set(res.Equity.Value)
		s.m.CurrentIndex.Set(float64(res.Index))
	}
	if s.health != nil {
		s.health.SetLastStepTime(start)
	}

	ev := s.eventLocked(model.EventStep)
	ev.Action = string(res.Decision.Action)
	ev.Reason = res.Decision.Reason
	ev.Trade = res.Trade
	eq := res.Equity
	ev.Equity = &eq
	evs := []model.Event{ev}

	if s.ledger.AtEnd() {
		end := s.eventLocked(model.EventAtEnd)
		run := s.runRecordLocked()
		end.Run = &run
		evs = append(evs, end)
	}
	return res, true, evs
}

func (s *Session) runRecordLocked() model.RunRecord {
	sum := s.ledger.Summary()
	return model.RunRecord{
		RunID:          s.runID,
		Session:        s.id,
		Dataset:        s.dataset,
		Strategy:       string(s.ledger.Strategy()),
		InitialCapital: sum.InitialCapital,
		FinalValue:     sum.FinalValue,
		ReturnPct:      sum.ReturnPct,
		MaxDrawdownPct: sum.MaxDrawdownPct,
		Trades:         sum.TotalTrades,
		Steps:          sum.Steps,
	}
}

// Play starts the playback driver. It is a no-op when already playing.
func (s *Session) Play() error {
	s.mu.RLock()
	loaded := s.ledger != nil
	atEnd := loaded && s.ledger.AtEnd()
	epoch := s.epoch
	s.mu.RUnlock()
	if !loaded {
		return ErrNoDataset
	}
	if atEnd {
		return nil
	}

	s.playEpoch.Store(epoch)
	if s.ctrl.Play() {
		s.playingChanged(model.EventPlay)
	}
	return nil
}

// Pause stops the playback driver; no tick runs after it returns.
func (s *Session) Pause() {
	if s.ctrl.Pause() {
		s.playingChanged(model.EventPause)
	}
}

// SetSpeed changes the playback interval, restarting a running driver.
func (s *Session) SetSpeed(d time.Duration) {
	s.ctrl.SetSpeed(d)
}

// IsPlaying reports whether the driver is running.
func (s *Session) IsPlaying() bool { return s.ctrl.IsPlaying() }

// Close stops playback permanently.
func (s *Session) Close() {
	s.ctrl.Close()
	if s.m != nil {
		s.m.Playing.Set(0)
	}
}

func (s *Session) onDriverStop() {
	if s.m != nil {
		s.m.Playing.Set(0)
	}
	s.mu.RLock()
	ev := s.eventLocked(model.EventPause)
	s.mu.RUnlock()
	ev.Snapshot.IsPlaying = false
	s.emit(ev)
}

func (s *Session) playingChanged(kind model.EventKind) {
	if s.m != nil {
		if kind == model.EventPlay {
			s.m.Playing.Set(1)
		} else {
			s.m.Playing.Set(0)
		}
	}
	s.mu.RLock()
	ev := s.eventLocked(kind)
	s.mu.RUnlock()
	s.emit(ev)
}

// Snapshot returns the synchronous state view.
func (s *Session) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() model.Snapshot {
	var snap model.Snapshot
	if s.ledger != nil {
		snap = s.ledger.Snapshot()
	} else {
		snap = model.Snapshot{
			Cash:           s.initial,
			PortfolioValue: s.initial,
			Strategy:       string(s.strategy),
			State:          string(portfolio.StateIdle),
			LastIndex:      -1,
		}
	}
	snap.IsPlaying = s.ctrl.IsPlaying()
	snap.SpeedMs = int(s.ctrl.Speed() / time.Millisecond)
	snap.Dataset = s.dataset
	return snap
}

func (s *Session) eventLocked(kind model.EventKind) model.Event {
	ev := model.Event{
		Kind:     kind,
		Session:  s.id,
		RunID:    s.runID,
		Snapshot: s.snapshotLocked(),
		At:       time.Now().UTC(),
	}
	ev.Index = ev.Snapshot.CurrentIndex
	return ev
}

func (s *Session) emit(evs ...model.Event) {
	if s.bus == nil {
		return
	}
	for _, ev := range evs {
		s.bus.Publish(ev)
	}
}

// Dataset returns the loaded dataset name.
func (s *Session) Dataset() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// Strategy returns the active strategy.
func (s *Session) Strategy() strategy.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategy
}

// Candles returns the decorated series. The slice is shared and must be
// treated as read-only; a reload replaces it rather than mutating it.
func (s *Session) Candles() []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candles
}

// Series returns the chart-ready indicator series, built once per load.
func (s *Session) Series() (indicator.Series, error) {
	s.mu.RLock()
	if s.series != nil {
		defer s.mu.RUnlock()
		return *s.series, nil
	}
	candles := s.candles
	s.mu.RUnlock()
	if candles == nil {
		return indicator.Series{}, ErrNoDataset
	}

	series := indicator.BuildSeries(candles)
	s.mu.Lock()
	if sameSeries(s.candles, candles) {
		s.series = &series
	}
	s.mu.Unlock()
	return series, nil
}

func sameSeries(a, b []model.Candle) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// Readout returns the indicator readout at index, or at the current index
// when index is negative.
func (s *Session) Readout(index int) (indicator.Readout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ledger == nil {
		return indicator.Readout{}, ErrNoDataset
	}
	if index < 0 {
		index = s.ledger.Index()
	}
	r, ok := indicator.ReadoutAt(s.candles, index)
	if !ok {
		return r, fmt.Errorf("sim: index %d out of range [0, %d]", index, len(s.candles)-1)
	}
	return r, nil
}

// Trades returns a copy of the trade log.
func (s *Session) Trades() []model.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ledger == nil {
		return []model.Trade{}
	}
	return s.ledger.Trades()
}

// Equity returns a copy of the equity curve.
func (s *Session) Equity() []model.EquityPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ledger == nil {
		return []model.EquityPoint{}
	}
	return s.ledger.Equity()
}

// Summary reports the current run's statistics.
func (s *Session) Summary() (portfolio.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ledger == nil {
		return portfolio.Summary{}, ErrNoDataset
	}
	return s.ledger.Summary(), nil
}
