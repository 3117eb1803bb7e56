// Package playback drives a step function on a timer.
//
// A Controller owns at most one driver goroutine at a time. The driver's
// cancel function and done channel live inside the controller and are
// released on every exit path: Pause, SetSpeed, Close, and the driver
// stopping itself at the end of the series.
package playback

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// DefaultInterval is used when a non-positive interval is configured.
	DefaultInterval = 500 * time.Millisecond
	// MinInterval bounds how fast the driver may tick.
	MinInterval = 10 * time.Millisecond
)

// StepFunc advances the simulation by one bar. It returns true once the
// series is exhausted, which stops the driver.
type StepFunc func() (atEnd bool)

// Controller runs a StepFunc every interval while playing.
type Controller struct {
	step StepFunc

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool

	// OnStop is called from the driver goroutine when it stops itself at the
	// end of the series. It is not called for Pause or Close, and must not
	// call Pause itself.
	OnStop func()
}

// New creates a paused controller.
func New(step StepFunc, interval time.Duration) *Controller {
	return &Controller{step: step, interval: clamp(interval)}
}

func clamp(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// Play starts the driver. It is a no-op, returning false, when a driver is
// already running or the controller is closed.
func (c *Controller) Play() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.runningLocked() {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	go c.drive(ctx, c.interval, done)
	return true
}

// Pause stops the driver and waits for its goroutine to exit, so no tick can
// run after Pause returns. It reports whether a driver was running.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return false
	}
	// A driver that already stopped itself at the end does not count.
	running := true
	select {
	case <-done:
		running = false
	default:
	}
	cancel()
	<-done
	return running
}

// SetSpeed changes the tick interval. A running driver is restarted with the
// new interval; the partially elapsed tick is discarded.
func (c *Controller) SetSpeed(d time.Duration) {
	wasRunning := c.Pause()
	c.mu.Lock()
	c.interval = clamp(d)
	c.mu.Unlock()
	if wasRunning {
		c.Play()
	}
}

// Close stops the driver permanently.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Pause()
}

// IsPlaying reports whether a driver is currently running.
func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningLocked()
}

// Speed returns the configured tick interval.
func (c *Controller) Speed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

func (c *Controller) runningLocked() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Controller) drive(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if c.step() {
				log.Printf("[playback] reached end of series, stopping driver")
				if c.OnStop != nil {
					c.OnStop()
				}
				return
			}
		}
	}
}
