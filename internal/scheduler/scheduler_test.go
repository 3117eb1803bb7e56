package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"strategy-sim/internal/notification"
	"strategy-sim/internal/sim"
)

type captureNotifier struct {
	alerts []notification.Alert
}

func (c *captureNotifier) Send(_ context.Context, a notification.Alert) error {
	c.alerts = append(c.alerts, a)
	return nil
}

type fakeRunner struct {
	calls atomic.Int64
	block chan struct{}
	err   error
}

func (f *fakeRunner) RunAll(ctx context.Context) (map[string][]sim.Result, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return map[string][]sim.Result{"spy": {{Strategy: "rsi"}}}, f.err
}

func TestRunNow(t *testing.T) {
	r := &fakeRunner{err: errors.New("one dataset failed")}
	s := New(context.Background(), r)

	if !s.RunNow() {
		t.Fatal("RunNow skipped an idle scheduler")
	}
	if r.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", r.calls.Load())
	}
	at, err := s.LastRun()
	if at.IsZero() || err == nil {
		t.Errorf("LastRun = (%v, %v)", at, err)
	}
}

func TestRunNow_Notifies(t *testing.T) {
	n := &captureNotifier{}
	s := New(context.Background(), &fakeRunner{err: errors.New("qqq: empty")})
	s.Notifier = n

	s.RunNow()
	if len(n.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(n.alerts))
	}
	a := n.alerts[0]
	if a.Level != notification.AlertWarning {
		t.Errorf("level = %s, want WARNING", a.Level)
	}
	if !strings.Contains(a.Message, "spy: rsi") || !strings.Contains(a.Message, "qqq: empty") {
		t.Errorf("message = %q", a.Message)
	}
}

func TestRunNow_SkipsOverlap(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s := New(context.Background(), r)

	done := make(chan bool)
	go func() { done <- s.RunNow() }()
	for r.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if s.RunNow() {
		t.Error("overlapping RunNow ran")
	}
	close(r.block)
	if !<-done {
		t.Error("first RunNow reported skipped")
	}
	if r.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", r.calls.Load())
	}
}

func TestRegister(t *testing.T) {
	s := New(context.Background(), &fakeRunner{})
	if err := s.Register("not a spec"); err == nil {
		t.Error("invalid spec accepted")
	}
	// Five-field specs need the seconds field here.
	if err := s.Register("0 2 * * *"); err == nil {
		t.Error("five-field spec accepted")
	}
}

func TestScheduledRun(t *testing.T) {
	r := &fakeRunner{}
	s := New(context.Background(), r)
	if err := s.Register("* * * * * *"); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for r.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduled batch never ran")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
