// Package scheduler runs the periodic strategy comparison over stored
// datasets.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"strategy-sim/internal/notification"
	"strategy-sim/internal/sim"

	"github.com/robfig/cron/v3"
)

// Runner is satisfied by *sim.Batch.
type Runner interface {
	RunAll(ctx context.Context) (map[string][]sim.Result, error)
}

// Scheduler manages the cron-driven batch job.
type Scheduler struct {
	Cron   *cron.Cron
	Runner Runner
	Ctx    context.Context

	// Notifier, when set, receives a report after every batch.
	Notifier notification.Notifier

	running atomic.Bool

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// New creates a Scheduler whose specs take a leading seconds field.
func New(ctx context.Context, runner Runner) *Scheduler {
	return &Scheduler{
		Cron:   cron.New(cron.WithSeconds()),
		Runner: runner,
		Ctx:    ctx,
	}
}

// Register schedules the batch job at spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, func() { s.RunNow() }); err != nil {
		return fmt.Errorf("register batch job %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[scheduler] started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

// RunNow executes the batch immediately. It returns false without running
// when a previous run is still in progress.
func (s *Scheduler) RunNow() bool {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("[scheduler] batch still running, skipping")
		return false
	}
	defer s.running.Store(false)

	start := time.Now()
	results, err := s.Runner.RunAll(s.Ctx)

	s.mu.Lock()
	s.lastRun = start
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		log.Printf("[scheduler] batch finished with error: %v", err)
	}
	rankings := make([]notification.Ranking, 0, len(results))
	for name, rs := range results {
		if len(rs) == 0 {
			continue
		}
		best := rs[0]
		log.Printf("[scheduler] dataset=%s best=%s return=%.2f%% drawdown=%.2f%%",
			name, best.Strategy, best.Summary.ReturnPct, best.Summary.MaxDrawdownPct)
		rankings = append(rankings, notification.Ranking{
			Dataset:     name,
			Best:        string(best.Strategy),
			ReturnPct:   best.Summary.ReturnPct,
			DrawdownPct: best.Summary.MaxDrawdownPct,
			Strategies:  len(rs),
		})
	}
	log.Printf("[scheduler] batch compared %d datasets in %v", len(results), time.Since(start).Round(time.Millisecond))

	if s.Notifier != nil {
		ctx, cancel := context.WithTimeout(s.Ctx, 15*time.Second)
		defer cancel()
		if nerr := s.Notifier.Send(ctx, notification.BatchAlert(rankings, err)); nerr != nil {
			log.Printf("[scheduler] notify failed: %v", nerr)
		}
	}
	return true
}

// LastRun reports when the batch last started and how it ended.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}
