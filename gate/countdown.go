package gate

import (
	"context"
	"sync"
	"time"
)

type CountdownState int

const (
	Waiting CountdownState = iota
	Navigated
	Cancelled
)

func (s CountdownState) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Navigated:
		return "navigated"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Countdown releases a redirect after a delay unless cancelled first.
// Continue short-circuits the delay. The first transition out of Waiting wins
// and the timer is always stopped on the way out.
type Countdown struct {
	duration time.Duration
	onTick   func(remaining time.Duration)

	mu     sync.Mutex
	state  CountdownState
	timer  *time.Timer
	ticker *time.Ticker
	done   chan struct{}
}

// NewCountdown creates a countdown. onTick, if non-nil, is called about once a
// second with the time remaining.
func NewCountdown(d time.Duration, onTick func(remaining time.Duration)) *Countdown {
	return &Countdown{duration: d, onTick: onTick, done: make(chan struct{})}
}

// Start arms the timer. Cancelling ctx cancels the countdown.
func (c *Countdown) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil || c.state != Waiting {
		return
	}

	c.timer = time.AfterFunc(c.duration, func() { c.finish(Navigated) })

	var tickC <-chan time.Time
	if c.onTick != nil && c.duration > time.Second {
		c.ticker = time.NewTicker(time.Second)
		tickC = c.ticker.C
	}
	deadline := time.Now().Add(c.duration)

	go func() {
		for {
			select {
			case <-c.done:
				return
			case <-ctx.Done():
				c.finish(Cancelled)
				return
			case <-tickC:
				if remaining := time.Until(deadline); remaining > 0 {
					c.onTick(remaining.Round(time.Second))
				}
			}
		}
	}()
}

// Continue navigates immediately.
func (c *Countdown) Continue() bool { return c.finish(Navigated) }

// Cancel aborts navigation.
func (c *Countdown) Cancel() bool { return c.finish(Cancelled) }

func (c *Countdown) finish(s CountdownState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Waiting {
		return false
	}
	c.state = s
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.ticker != nil {
		c.ticker.Stop()
	}
	close(c.done)
	return true
}

// Done is closed once the countdown leaves Waiting.
func (c *Countdown) Done() <-chan struct{} { return c.done }

func (c *Countdown) State() CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until the countdown settles and returns the final state.
func (c *Countdown) Wait() CountdownState {
	<-c.done
	return c.State()
}
