package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"strategy-sim/internal/model"
)

// Broadcaster builds envelopes and fans them out to connected clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// BroadcastEvent sends a session event to every client and records its
// emission-to-fan-out latency.
func (b *Broadcaster) BroadcastEvent(ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	if b.hub.Latency != nil && !ev.At.IsZero() {
		b.hub.Latency.Record(now.Sub(ev.At))
	}
	b.broadcast(string(ev.Kind), data, now)
}

// Broadcast sends an arbitrary typed payload to every client.
func (b *Broadcaster) Broadcast(kind string, data []byte) {
	b.broadcast(kind, data, time.Now().UTC())
}

// broadcast assigns the next hub seq, stores the envelope for replay and
// fans it out. It holds the hub lock throughout so that a client registering
// concurrently sees each seq exactly once, via either replay or fan-out.
func (b *Broadcaster) broadcast(kind string, data []byte, now time.Time) {
	h := b.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	seq := h.seq
	buf := appendEnvelope(make([]byte, 0, len(kind)+len(data)+96), kind, data, now, seq)
	h.replay.Push(seq, buf)

	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
			h.dropped++
		}
	}
}

// appendEnvelope hand-crafts {"type":...,"data":...,"ts":...,"seq":N}.
// kind is always one of our own identifiers, so it needs no escaping.
func appendEnvelope(buf []byte, kind string, data []byte, now time.Time, seq int64) []byte {
	buf = append(buf, `{"type":"`...)
	buf = append(buf, kind...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
