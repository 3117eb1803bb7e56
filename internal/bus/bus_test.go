package bus

import (
	"testing"
	"time"

	"strategy-sim/internal/model"
)

func TestBus_BroadcastsToAll(t *testing.T) {
	b := New(10)
	out1 := b.Subscribe()
	out2 := b.Subscribe()

	b.Publish(model.Event{Kind: model.EventStep, Index: 7})

	for i, out := range []<-chan model.Event{out1, out2} {
		select {
		case ev := <-out:
			if ev.Index != 7 || ev.Kind != model.EventStep {
				t.Errorf("out%d: unexpected event %+v", i+1, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out waiting for event", i+1)
		}
	}
}

func TestBus_DropsForSlowSubscriber(t *testing.T) {
	b := New(1)
	_ = b.Subscribe()
	fast := b.Subscribe()

	var dropped []int
	b.OnDrop = func(idx int) { dropped = append(dropped, idx) }

	b.Publish(model.Event{Index: 1})
	<-fast
	b.Publish(model.Event{Index: 2})

	if len(dropped) != 1 || dropped[0] != 0 {
		t.Fatalf("expected one drop on subscriber 0, got %v", dropped)
	}
	if ev := <-fast; ev.Index != 2 {
		t.Errorf("fast subscriber should still receive, got %+v", ev)
	}

	stats := b.ChannelStats()
	if stats[0].Len != 1 || stats[0].Cap != 1 {
		t.Errorf("unexpected stats %+v", stats[0])
	}
}

func TestBus_Close(t *testing.T) {
	b := New(4)
	out := b.Subscribe()
	b.Close()
	b.Publish(model.Event{Index: 1})

	if _, ok := <-out; ok {
		t.Error("expected closed channel")
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribing after Close should return a closed channel")
	}
	b.Close()
}
