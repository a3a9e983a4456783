// Package monotonic provides a monotonic clock.
// The clock is safe for concurrent use and hands out strictly increasing
// timestamps truncated to a given precision, so two commits never share a
// revision stamp.
package monotonic

import (
	"fmt"
	"sync"
	"time"
)

// Clock is a monotonic clock that generates increasing timestamps.
type Clock struct {
	precision time.Duration
	source    func() time.Time
	lk        sync.Mutex
	last      time.Time
}

// NewClock creates a new Clock with the given precision.
func NewClock(precision time.Duration) (*Clock, error) {
	switch precision {
	case time.Second, time.Millisecond, time.Microsecond, time.Nanosecond:
	default:
		return nil, fmt.Errorf("invalid precision: %v", precision)
	}

	return &Clock{
		precision: precision,
		source:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithSource replaces the wall-clock source, mainly for tests.
func (c *Clock) WithSource(source func() time.Time) *Clock {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.source = source
	return c
}

// Now returns the current time truncated to the Clock's precision.
// Now will always return a strictly increasing value.
func (c *Clock) Now() time.Time {
	c.lk.Lock()
	defer c.lk.Unlock()

	now := c.source().Truncate(c.precision)
	if !now.After(c.last) {
		now = c.last.Add(c.precision)
	}
	c.last = now
	return now
}

// Advance raises the floor of the clock to t, so later calls to Now return
// values strictly after t even when the wall clock lags behind it.
func (c *Clock) Advance(t time.Time) {
	c.lk.Lock()
	defer c.lk.Unlock()

	t = t.Truncate(c.precision)
	if t.After(c.last) {
		c.last = t
	}
}
