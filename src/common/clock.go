package common

import (
	"sort"
	"sync"
	"time"
)

// Timer is a handle on a callback scheduled through a Clock.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the callback
	// has already fired or the timer was already stopped.
	Stop() bool
}

// Clock abstracts time so that TTLs, deadlines and backoffs can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
	// After returns a channel that receives the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock with the time package.
type RealClock struct{}

// NewRealClock returns a Clock backed by the system time.
func NewRealClock() Clock {
	return RealClock{}
}

// Now implements the Clock interface.
func (RealClock) Now() time.Time {
	return time.Now()
}

// AfterFunc implements the Clock interface.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// After implements the Clock interface.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// FakeClock is a manually advanced Clock. Callbacks scheduled with AfterFunc
// run synchronously, in deadline order, from within Advance.
type FakeClock struct {
	l      sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	f        func()
	ch       chan time.Time
	done     bool
}

// NewFakeClock returns a FakeClock set to the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements the Clock interface.
func (c *FakeClock) Now() time.Time {
	c.l.Lock()
	defer c.l.Unlock()
	return c.now
}

// AfterFunc implements the Clock interface.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.l.Lock()
	defer c.l.Unlock()

	t := &fakeTimer{
		clock:    c,
		deadline: c.now.Add(d),
		f:        f,
	}
	c.timers = append(c.timers, t)
	return t
}

// After implements the Clock interface.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.l.Lock()
	defer c.l.Unlock()

	t := &fakeTimer{
		clock:    c,
		deadline: c.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	c.timers = append(c.timers, t)
	return t.ch
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has been reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.l.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due, pending []*fakeTimer
	for _, t := range c.timers {
		if t.done {
			continue
		}
		if !t.deadline.After(now) {
			t.done = true
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.l.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	for _, t := range due {
		if t.ch != nil {
			t.ch <- now
			continue
		}
		t.f()
	}
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (c *FakeClock) Pending() int {
	c.l.Lock()
	defer c.l.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// Stop implements the Timer interface.
func (t *fakeTimer) Stop() bool {
	t.clock.l.Lock()
	defer t.clock.l.Unlock()

	if t.done {
		return false
	}
	t.done = true
	return true
}
