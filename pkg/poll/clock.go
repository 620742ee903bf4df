// Package poll provides the monotonic clock and deadline primitives used by
// every wait in the reporter. All waiting is expressed as repeated
// non-blocking polls paced by Clock.Sleep and bounded by a Deadline.
package poll

import (
	"sync"
	"time"
)

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock. time.Now carries a monotonic reading, so
// comparisons between its values are not affected by clock adjustments.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep pauses the calling goroutine for d.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// ManualClock is a Clock that only advances when Sleep or Advance is called.
// Long deadlines complete instantly under it.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current simulated time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the simulated time by d.
func (c *ManualClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the simulated time forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Ensure clocks implement Clock.
var (
	_ Clock = SystemClock{}
	_ Clock = (*ManualClock)(nil)
)
