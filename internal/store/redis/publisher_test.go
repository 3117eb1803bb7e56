package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"strategy-sim/internal/model"
)

type fakeSink struct {
	mu   sync.Mutex
	fail bool
	got  []model.Event
}

func (f *fakeSink) send(_ context.Context, ev model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	f.got = append(f.got, ev)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func newTestPublisher(sink *fakeSink, maxFailures, maxBuf int) *Publisher {
	p := newPublisher(NewCircuitBreaker(maxFailures, 30*time.Millisecond), maxBuf)
	p.send = sink.send
	return p
}

func TestKeys(t *testing.T) {
	if Channel("s1") != "pub:sim:s1" || StreamKey("s1") != "sim:events:s1" || LatestKey("s1") != "sim:latest:s1" {
		t.Error("unexpected key layout")
	}
}

func TestPublisher_PassesThrough(t *testing.T) {
	sink := &fakeSink{}
	p := newTestPublisher(sink, 3, 10)
	var published int
	p.OnPublish = func(time.Duration) { published++ }

	for i := 0; i < 3; i++ {
		if err := p.Publish(context.Background(), model.Event{Index: i}); err != nil {
			t.Fatal(err)
		}
	}
	if sink.count() != 3 || published != 3 {
		t.Errorf("expected 3 sends, got %d (callbacks %d)", sink.count(), published)
	}
}

func TestPublisher_BuffersWhileOpenAndFlushes(t *testing.T) {
	sink := &fakeSink{fail: true}
	p := newTestPublisher(sink, 2, 10)
	flushed := make(chan int, 1)
	p.OnFlush = func(n int) { flushed <- n }
	ctx := context.Background()

	// Two failures trip the breaker; errors surface to the caller.
	for i := 0; i < 2; i++ {
		if err := p.Publish(ctx, model.Event{Index: i}); err == nil {
			t.Fatal("expected error before breaker opens")
		}
	}
	if p.Breaker().CurrentState() != StateOpen {
		t.Fatal("expected open breaker")
	}

	// While open, events are buffered silently.
	for i := 2; i < 5; i++ {
		if err := p.Publish(ctx, model.Event{Index: i}); err != nil {
			t.Fatalf("buffered publish should not fail: %v", err)
		}
	}
	if p.PendingCount() != 3 {
		t.Fatalf("expected 3 pending, got %d", p.PendingCount())
	}

	// Recover: the half-open probe succeeds and the buffer is replayed.
	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()
	time.Sleep(40 * time.Millisecond)
	if err := p.Publish(ctx, model.Event{Index: 5}); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-flushed:
		if n != 3 {
			t.Errorf("expected 3 flushed, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("buffer was not flushed")
	}
	if sink.count() != 4 || p.PendingCount() != 0 {
		t.Errorf("expected 4 delivered and none pending, got %d / %d", sink.count(), p.PendingCount())
	}
}

func TestPublisher_BufferDropsOldest(t *testing.T) {
	sink := &fakeSink{fail: true}
	p := newTestPublisher(sink, 1, 2)
	ctx := context.Background()

	p.Publish(ctx, model.Event{Index: 0}) // trips
	for i := 1; i <= 3; i++ {
		p.Publish(ctx, model.Event{Index: i})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) != 2 || p.buffer[0].Index != 2 || p.buffer[1].Index != 3 {
		t.Errorf("expected [2 3] buffered, got %+v", p.buffer)
	}
}
