package birthday

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies the current instant to both passes
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant until moved.
// Safe for concurrent use.
type FixedClock struct {
	mu sync.Mutex
	at time.Time
}

// NewFixedClock creates a clock frozen at t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{at: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

// Set moves the clock to t
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = t
}

// Advance moves the clock forward by d
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

// ClockFor returns a FixedClock when simulated is set, otherwise the system clock.
// simulated must be RFC3339.
func ClockFor(simulated string) (Clock, error) {
	if simulated == "" {
		return SystemClock{}, nil
	}
	t, err := time.Parse(time.RFC3339, simulated)
	if err != nil {
		return nil, fmt.Errorf("parse simulated time %q: %w", simulated, err)
	}
	return NewFixedClock(t), nil
}
