// Package bus fans simulation events out to subscribers without ever blocking
// the publisher.
package bus

import (
	"log"
	"sync"

	"strategy-sim/internal/model"
)

// Bus broadcasts events to N subscriber channels. If a subscriber channel is
// full, the event is dropped for that subscriber so a slow consumer cannot
// stall a simulation step.
type Bus struct {
	mu      sync.RWMutex
	outputs []chan model.Event
	bufSize int
	closed  bool

	// OnDrop is called when an event is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a Bus with the given buffer size for subscriber channels.
func New(outputBufferSize int) *Bus {
	if outputBufferSize < 1 {
		outputBufferSize = 1
	}
	return &Bus{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new subscriber channel. The channel is
// closed by Close.
func (b *Bus) Subscribe() <-chan model.Event {
	ch := make(chan model.Event, b.bufSize)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.outputs = append(b.outputs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Publish delivers ev to every subscriber that has room.
func (b *Bus) Publish(ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for i, ch := range b.outputs {
		select {
		case ch <- ev:
		default:
			if b.OnDrop != nil {
				b.OnDrop(i)
			} else {
				log.Printf("[bus] subscriber %d full, dropping %s event idx=%d", i, ev.Kind, ev.Index)
			}
		}
	}
}

// Close closes every subscriber channel. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.outputs {
		close(ch)
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel.
// Used for reporting channel saturation percentage.
type ChannelStat struct {
	Len int
	Cap int
}

func (b *Bus) ChannelStats() []ChannelStat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := make([]ChannelStat, len(b.outputs))
	for i, ch := range b.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
