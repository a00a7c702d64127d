package util

import (
	"sort"
	"sync"
	"time"
)

// Ticks is a free running millisecond counter that wraps around at
// 2^32. Two values may only be compared through Diff, never by raw
// subtraction or ordering.
type Ticks uint32

// Add returns t moved forward by d (millisecond resolution).
func (t Ticks) Add(d time.Duration) Ticks {
	return t + Ticks(uint32(d.Milliseconds()))
}

// Diff returns t - other in milliseconds, correct across one wraparound
// as long as the real distance is below 2^31 ms.
func (t Ticks) Diff(other Ticks) int32 {
	return int32(uint32(t) - uint32(other))
}

// Since returns the time passed from earlier to t.
func (t Ticks) Since(earlier Ticks) time.Duration {
	return time.Duration(t.Diff(earlier)) * time.Millisecond
}

// Reached reports whether t is at or past deadline.
func (t Ticks) Reached(deadline Ticks) bool {
	return t.Diff(deadline) >= 0
}

// Clock is the monotonic time source of the control loop.
type Clock interface {
	Now() Ticks
	Sleep(d time.Duration)
}

// SystemClock counts milliseconds since its creation.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() Ticks {
	return Ticks(uint32(time.Since(c.start).Milliseconds()))
}

func (c *SystemClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

type scheduledAction struct {
	at  Ticks
	seq int
	fn  func()
}

// ManualClock is a virtual clock. Sleep advances time instantly and
// runs the actions scheduled with At/After once their time is reached,
// in time order. Actions run on the sleeping goroutine, which makes
// them a stand-in for interrupts arriving during a blocking sequence.
type ManualClock struct {
	mu      sync.Mutex
	now     Ticks
	seq     int
	actions []scheduledAction
}

func NewManualClock(start Ticks) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() Ticks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Elapsed returns the virtual time passed since start.
func (c *ManualClock) Elapsed(start Ticks) time.Duration {
	return c.Now().Since(start)
}

// At schedules fn to run when the clock reaches t. Actions due in the
// past run on the next Advance.
func (c *ManualClock) At(t Ticks, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.actions = append(c.actions, scheduledAction{at: t, seq: c.seq, fn: fn})
}

// After schedules fn to run d after the current virtual time.
func (c *ManualClock) After(d time.Duration, fn func()) {
	c.At(c.Now().Add(d), fn)
}

// Advance moves the clock forward by d, running due actions on the way.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := -1
		if len(c.actions) > 0 {
			now := c.now
			sort.SliceStable(c.actions, func(i, j int) bool {
				di, dj := c.actions[i].at.Diff(now), c.actions[j].at.Diff(now)
				if di != dj {
					return di < dj
				}
				return c.actions[i].seq < c.actions[j].seq
			})
			if c.actions[0].at.Diff(target) <= 0 {
				next = 0
			}
		}
		if next < 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		action := c.actions[next]
		c.actions = c.actions[1:]
		if action.at.Diff(c.now) > 0 {
			c.now = action.at
		}
		c.mu.Unlock()
		action.fn()
	}
}
