package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling through while the breaker is
// open, or while a half-open probe is already in flight.
var ErrCircuitOpen = errors.New("redis: circuit breaker is open")

// State is the breaker position. The numeric values are exported as the
// circuit breaker gauge.
type State int

const (
	StateClosed   State = 0
	StateOpen     State = 1
	StateHalfOpen State = 2
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker stops calling a failing Redis after threshold consecutive
// errors. Once cooldown has passed since it opened, exactly one probe call
// is let through: success closes the breaker, failure reopens it.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	trips     int
	probing   bool
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	// OnStateChange is called with the breaker lock held; it must not call
	// back into the breaker.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker. A threshold below 1 is treated
// as 1.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Execute calls fn unless the breaker rejects the call, and records its
// outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn()
	cb.release(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	probe := cb.state == StateHalfOpen
	if probe {
		cb.probing = false
	}
	if err == nil {
		cb.failures = 0
		if probe {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	// Calls started before the breaker opened may still fail afterwards.
	if cb.state == StateOpen {
		return
	}
	if probe || cb.failures >= cb.threshold {
		cb.openedAt = cb.now()
		cb.trips++
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	cb.state = to
	if cb.OnStateChange != nil && from != to {
		cb.OnStateChange(from, to)
	}
}

// CurrentState returns the breaker position.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Trips returns how many times the breaker has opened.
func (cb *CircuitBreaker) Trips() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.trips
}
