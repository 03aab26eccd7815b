// Package clock abstracts wall time for plugin utilities so that debounce,
// throttle and id generation can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the subset of time operations the plugin utilities need.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// AfterFunc calls f after d has elapsed. The returned Timer can cancel
	// or re-arm the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop cancels the call. It reports whether the timer was still pending.
	Stop() bool

	// Reset re-arms the timer to fire d from now. It reports whether the
	// timer was still pending.
	Reset(d time.Duration) bool
}

// Real is backed by the time package.
type Real struct{}

// NewReal returns a Clock reading the system time.
func NewReal() Real {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Mock only moves when Advance is called. Timers that come due fire
// synchronously on the goroutine calling Advance, in deadline order.
type Mock struct {
	mu      sync.Mutex
	current time.Time
	pending []*mockTimer
}

type mockTimer struct {
	clock    *Mock
	deadline time.Time
	fn       func()
	active   bool
}

// NewMock creates a Mock clock positioned at start.
func NewMock(start time.Time) *Mock {
	return &Mock{current: start}
}

// Now returns the mock time.
func (c *Mock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules fn relative to the mock time.
func (c *Mock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &mockTimer{clock: c, deadline: c.current.Add(d), fn: fn, active: true}
	c.pending = append(c.pending, t)
	return t
}

// Pending reports how many timers have not yet fired or been stopped.
func (c *Mock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.pending {
		if t.active {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and fires every timer that is due.
func (c *Mock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current

	var due, rest []*mockTimer
	for _, t := range c.pending {
		switch {
		case !t.active:
		case !t.deadline.After(now):
			t.active = false
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	c.pending = rest
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	// Callbacks may schedule new timers, so run them without the lock.
	for _, t := range due {
		t.fn()
	}
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	was := t.active
	t.active = false
	return was
}

func (t *mockTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	was := t.active
	t.deadline = t.clock.current.Add(d)
	if !was {
		t.active = true
		t.clock.pending = append(t.clock.pending, t)
	}
	return was
}
