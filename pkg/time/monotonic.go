package time

import (
	"sync"
	"time"
)

// clock provides "now" for every staleness comparison
// the manager reads it once per store transaction so all checks inside
// one operation agree on the same instant
type Clock interface {
	Now() time.Time
}

// wall clock anchored to a monotonic reading taken at construction
// time.Since uses the monotonic clock under the hood, so a system clock
// step after start never moves Now backwards inside this process
type SystemClock struct {
	startWall time.Time
	startMono time.Time
}

func NewClock() *SystemClock {
	now := time.Now()
	return &SystemClock{
		startWall: now.Round(0), //strip monotonic reading
		startMono: now,
	}
}

func (c *SystemClock) Now() time.Time {
	return c.startWall.Add(time.Since(c.startMono)).UTC()
}

// duration since the clock was created
func (c *SystemClock) Elapsed() time.Duration {
	return time.Since(c.startMono)
}

// manually driven clock for tests and simulations
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sets the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
