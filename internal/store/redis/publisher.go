// Package redis publishes simulation events to Redis for external consumers:
// a pub/sub channel per session, a capped event stream, and the latest
// snapshot under a TTL key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"strategy-sim/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL = 30 * time.Minute
	eventStreamLen   = 10000
	defaultBufSize   = 10000
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Channel is the pub/sub channel for a session's events.
func Channel(session string) string { return "pub:sim:" + session }

// StreamKey is the capped stream holding a session's events.
func StreamKey(session string) string { return "sim:events:" + session }

// LatestKey holds the most recent snapshot of a session.
func LatestKey(session string) string { return "sim:latest:" + session }

// Connect creates a client and pings the server.
func Connect(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// Publisher writes events through a circuit breaker. While the breaker is
// open, events are buffered locally (oldest dropped first) and replayed once
// it closes again.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
	send   func(ctx context.Context, ev model.Event) error

	mu     sync.Mutex
	buffer []model.Event
	maxBuf int

	// Callbacks (optional, for metrics)
	OnPublish func(d time.Duration)
	OnBuffer  func()
	OnFlush   func(count int)
}

// NewPublisher wraps client with a breaker. maxBuffer <= 0 uses the default.
func NewPublisher(client *goredis.Client, cb *CircuitBreaker, maxBuffer int) *Publisher {
	p := newPublisher(cb, maxBuffer)
	p.client = client
	p.send = p.write
	return p
}

func newPublisher(cb *CircuitBreaker, maxBuffer int) *Publisher {
	if maxBuffer <= 0 {
		maxBuffer = defaultBufSize
	}
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	p := &Publisher{
		cb:     cb,
		ttl:    defaultLatestTTL,
		maxBuf: maxBuffer,
		buffer: make([]model.Event, 0, 64),
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go p.flush(context.Background())
		}
	}
	return p
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker returns the publisher's circuit breaker.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// Publish sends ev, or buffers it when the circuit is open.
func (p *Publisher) Publish(ctx context.Context, ev model.Event) error {
	start := time.Now()
	err := p.cb.Execute(func() error { return p.send(ctx, ev) })
	if errors.Is(err, ErrCircuitOpen) {
		p.bufferEvent(ev)
		return nil
	}
	if err != nil {
		return err
	}
	if p.OnPublish != nil {
		p.OnPublish(time.Since(start))
	}
	return nil
}

// write performs the pipelined SET + XADD + PUBLISH for one event.
func (p *Publisher) write(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	snap, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	jsonData := string(data)

	pipe := p.client.Pipeline()

	// SET latest snapshot with TTL
	pipe.Set(ctx, LatestKey(ev.Session), string(snap), p.ttl)

	// XADD to stream with auto-trimming
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey(ev.Session),
		MaxLen: eventStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind": string(ev.Kind),
			"data": jsonData,
		},
	})

	// PUBLISH for real-time subscribers
	pipe.Publish(ctx, Channel(ev.Session), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: pipeline for session %s: %w", ev.Session, err)
	}
	return nil
}

func (p *Publisher) bufferEvent(ev model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		// Full: drop the oldest.
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, ev)

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered events in order. Events that fail again are dropped.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]model.Event, 0, 64)
	p.mu.Unlock()

	flushed := 0
	for _, ev := range toFlush {
		if err := p.send(ctx, ev); err != nil {
			log.Printf("[redis] flush dropped %s event for %s: %v", ev.Kind, ev.Session, err)
			continue
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered events", flushed)
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered events waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
