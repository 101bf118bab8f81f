package node

import (
	"math/rand"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer paces the node's periodic work. It ticks once per timeout, and
// must be reset after each tick to tick again.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the heartbeatTimer
	stopCh       chan struct{}      //receives instruction to stop the heartbeatTimer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
}

// NewControlTimer creates a ControlTimer whose timers come from
// timerFactory.
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewRandomControlTimer creates a ControlTimer that waits between min and
// 2*min, so that nodes started together do not poll their peers in lockstep.
func NewRandomControlTimer(clock common.Clock) *ControlTimer {

	randomTimeout := func(min time.Duration) <-chan time.Time {
		if min == 0 {
			return nil
		}
		extra := (time.Duration(rand.Int63()) % min)
		return clock.After(min + extra)
	}
	return NewControlTimer(randomTimeout)
}

// Run starts the timer with the init timeout, and serves resets until
// Shutdown.
func (c *ControlTimer) Run(init time.Duration) {

	timer := c.timerFactory(init)
	for {
		select {
		case <-timer:
			timer = nil
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
		case t := <-c.resetCh:
			timer = c.timerFactory(t)
		case <-c.stopCh:
			timer = nil
		case <-c.shutdownCh:
			return
		}
	}
}

// Reset rearms the timer with timeout t.
func (c *ControlTimer) Reset(t time.Duration) {
	select {
	case c.resetCh <- t:
	case <-c.shutdownCh:
	}
}

// Stop disarms the timer until the next Reset.
func (c *ControlTimer) Stop() {
	select {
	case c.stopCh <- struct{}{}:
	case <-c.shutdownCh:
	}
}

// Shutdown terminates the Run loop.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
