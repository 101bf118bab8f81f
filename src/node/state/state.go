package state

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a Catalyst node: Syncing, Running, Stalled or
// Shutdown.
type State uint32

const (
	// Syncing is the initial state, in which a node has not yet accepted a
	// delta height from a quorum of its peers. It answers requests and relays
	// gossip normally.
	Syncing State = iota

	// Running is the state in which the node's view of the delta height is
	// backed by a quorum of peers.
	Running

	// Stalled is the state in which the last sync exhausted its retries. The
	// node keeps polling its peers and returns to Running as soon as a round
	// succeeds.
	Stalled

	// Shutdown is the state in which a node stops responding to external
	// events and closes its transport.
	Shutdown
)

// WGLIMIT is the maximum number of goroutines that can be launched through
// state.GoFunc
const WGLIMIT = 20

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Syncing:
		return "Syncing"
	case Running:
		return "Running"
	case Stalled:
		return "Stalled"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Manager wraps a State with get and set methods. It is also used to limit the
// number of goroutines launched by the node, and to wait for all of them to
// complete.
type Manager struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

// GetState returns the current state.
func (b *Manager) GetState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

// SetState sets the state.
func (b *Manager) SetState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// CompareAndSetState sets the state to next only if it is currently prev.
func (b *Manager) CompareAndSetState(prev, next State) bool {
	stateAddr := (*uint32)(&b.state)
	return atomic.CompareAndSwapUint32(stateAddr, uint32(prev), uint32(next))
}

// GoFunc launches a goroutine for a given function, if there are currently
// less than WGLIMIT running. Otherwise f runs on the calling goroutine, which
// slows the caller down until the running ones complete.
func (b *Manager) GoFunc(f func()) {
	if atomic.AddInt32(&b.wgCount, 1) > WGLIMIT {
		atomic.AddInt32(&b.wgCount, -1)
		f()
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer atomic.AddInt32(&b.wgCount, -1)
		f()
	}()
}

// Running returns the number of goroutines launched with GoFunc that have
// not returned yet.
func (b *Manager) Running() int {
	return int(atomic.LoadInt32(&b.wgCount))
}

// WaitRoutines waits for all the goroutines in the waitgroup.
func (b *Manager) WaitRoutines() {
	b.wg.Wait()
}
