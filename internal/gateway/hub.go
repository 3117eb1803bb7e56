// Package gateway exposes a simulation session over REST and a WebSocket
// event stream.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"strategy-sim/internal/model"

	"github.com/gorilla/websocket"
)

// DefaultReplaySize is the number of envelopes kept for reconnect backfill.
const DefaultReplaySize = 500

// Hub manages WebSocket clients and fans session events out to them.
// Every envelope carries a hub-wide monotonic seq; a reconnecting client
// passes ?last_seq=N and is backfilled from the replay buffer, or sent a
// fresh snapshot when the gap is no longer buffered.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	dropped int64
	replay  *ReplayBuffer

	// snapshot supplies the state sent to freshly connected clients.
	snapshot func() model.Snapshot
	started  time.Time

	// Emission-to-fan-out latency of session events.
	Latency *LatencyTracker

	Broadcaster *Broadcaster
}

// NewHub creates a Hub. snapshot may be nil, in which case clients get no
// initial state.
func NewHub(snapshot func() model.Snapshot, replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = DefaultReplaySize
	}
	h := &Hub{
		clients:  make(map[*Client]bool),
		replay:   NewReplayBuffer(replaySize),
		snapshot: snapshot,
		started:  time.Now(),
		Latency:  NewLatencyTracker(10000),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Run broadcasts every event from events until ctx is cancelled or the
// channel is closed.
func (h *Hub) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Broadcaster.BroadcastEvent(ev)
		}
	}
}

// HandleWSRequest registers an upgraded connection. When resume is set the
// client is backfilled with every envelope after lastSeq.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastSeq int64, resume bool) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, h.replay.Cap()+16),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.sendInitialLocked(client, lastSeq, resume)
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.writePump()
	go client.readPump()
}

// sendInitialLocked queues either the replay backfill or a snapshot.
func (h *Hub) sendInitialLocked(c *Client, lastSeq int64, resume bool) {
	if resume && lastSeq <= h.seq {
		envs, complete := h.replay.Since(lastSeq)
		if complete {
			for _, env := range envs {
				c.enqueue(env)
			}
			return
		}
		log.Printf("[gateway] replay gap after seq %d no longer buffered, sending snapshot", lastSeq)
	}
	c.enqueue(h.snapshotEnvelopeLocked())
}

func (h *Hub) snapshotEnvelopeLocked() []byte {
	var snap model.Snapshot
	if h.snapshot != nil {
		snap = h.snapshot()
	}
	data, _ := json.Marshal(snap)
	return appendEnvelope(nil, "snapshot", data, time.Now().UTC(), h.seq)
}

// resync sends a client the current snapshot.
func (h *Hub) resync(c *Client) {
	h.mu.RLock()
	env := h.snapshotEnvelopeLocked()
	_, ok := h.clients[c]
	if ok {
		c.enqueue(env)
	}
	h.mu.RUnlock()
}

// RemoveClient removes a client from the hub. It is safe to call twice.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// GetReplayRange returns buffered envelopes with seq in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(fromSeq, toSeq int64) [][]byte {
	entries := h.replay.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// Seq returns the seq of the most recent envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Dropped returns how many envelopes were dropped for slow clients.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartMetricsBroadcast sends process metrics to all WS clients every
// interval. Metrics envelopes are not sequenced or replayed.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := CollectMetrics(h.started)
			m.Clients = h.ClientCount()
			m.Latency = h.Latency.Stats()
			m.Dropped = h.Dropped()
			m.Seq = h.Seq()
			data, _ := json.Marshal(m)
			envelope := appendEnvelope(nil, "metrics", data, time.Now().UTC(), 0)

			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(envelope)
			}
			h.mu.RUnlock()
		}
	}
}
