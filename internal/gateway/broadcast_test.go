package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"strategy-sim/internal/model"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	TS   string          `json:"ts"`
	Seq  int64           `json:"seq"`
}

func TestAppendEnvelopeFormat(t *testing.T) {
	data := []byte(`{"kind":"step","index":42}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	buf := appendEnvelope(nil, "step", data, now, 42)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Type != "step" {
		t.Errorf("type: got %q, want step", env.Type)
	}
	if env.Seq != 42 {
		t.Errorf("seq: got %d, want 42", env.Seq)
	}
	if string(env.Data) != string(data) {
		t.Errorf("data: got %s, want %s", env.Data, data)
	}
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Fatalf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
}

func TestBroadcast_SequencesAndReplays(t *testing.T) {
	hub := NewHub(nil, 10)
	for i := 0; i < 3; i++ {
		hub.Broadcaster.BroadcastEvent(model.Event{Kind: model.EventStep, Index: i, At: time.Now().UTC()})
	}

	if hub.Seq() != 3 {
		t.Fatalf("Seq() = %d, want 3", hub.Seq())
	}
	got := hub.GetReplayRange(2, 3)
	if len(got) != 2 {
		t.Fatalf("GetReplayRange(2,3) returned %d envelopes", len(got))
	}
	var env envelope
	if err := json.Unmarshal(got[0], &env); err != nil {
		t.Fatal(err)
	}
	var ev model.Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if env.Seq != 2 || env.Type != "step" || ev.Index != 1 {
		t.Errorf("envelope 2 = seq %d type %s index %d", env.Seq, env.Type, ev.Index)
	}
	if s := hub.Latency.Stats(); s.Count != 3 {
		t.Errorf("latency samples = %d, want 3", s.Count)
	}
}

func TestBroadcast_DropsForFullClient(t *testing.T) {
	hub := NewHub(nil, 10)
	c := &Client{send: make(chan []byte, 1), hub: hub}
	hub.clients[c] = true

	hub.Broadcaster.Broadcast("metrics", []byte(`{}`))
	hub.Broadcaster.Broadcast("metrics", []byte(`{}`))

	if len(c.send) != 1 {
		t.Errorf("client buffer = %d, want 1", len(c.send))
	}
	if hub.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", hub.Dropped())
	}

	hub.RemoveClient(c)
	hub.RemoveClient(c)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after remove", hub.ClientCount())
	}
}
