package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"strategy-sim/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Subscriber reads simulation events published by a Publisher.
type Subscriber struct {
	client *goredis.Client
}

// NewSubscriber wraps an already-connected client.
func NewSubscriber(client *goredis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Latest returns the most recent snapshot stored for session.
func (s *Subscriber) Latest(ctx context.Context, session string) (model.Snapshot, error) {
	var snap model.Snapshot
	data, err := s.client.Get(ctx, LatestKey(session)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return snap, fmt.Errorf("redis: no snapshot for session %s", session)
		}
		return snap, fmt.Errorf("redis get latest: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("redis: decode snapshot: %w", err)
	}
	return snap, nil
}

// History returns up to count events from the session stream, oldest first.
func (s *Subscriber) History(ctx context.Context, session string, count int64) ([]model.Event, error) {
	msgs, err := s.client.XRevRangeN(ctx, StreamKey(session), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange: %w", err)
	}
	out := make([]model.Event, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if ev, ok := decodeMessage(msgs[i]); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func decodeMessage(msg goredis.XMessage) (model.Event, bool) {
	var ev model.Event
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return ev, false
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, false
	}
	return ev, true
}

// Subscribe forwards live events for session (or every session when session
// is empty) into out. Slow consumers lose events rather than blocking the
// subscription. Blocks until ctx is cancelled.
func (s *Subscriber) Subscribe(ctx context.Context, session string, out chan<- model.Event) error {
	var pubsub *goredis.PubSub
	if session == "" {
		pubsub = s.client.PSubscribe(ctx, Channel("*"))
	} else {
		pubsub = s.client.Subscribe(ctx, Channel(session))
	}
	defer pubsub.Close()

	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[redis-sub] bad payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}
}
