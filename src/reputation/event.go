package reputation

import (
	"fmt"
	"time"
)

// Reason explains a reputation adjustment.
type Reason uint8

const (
	// Timely means the peer answered a request before its TTL.
	Timely Reason = iota + 1
	// Timeout means a request to the peer was evicted unanswered.
	Timeout
	// Invalid means the peer sent an envelope that failed verification or
	// decoding.
	Invalid
)

// String ...
func (r Reason) String() string {
	switch r {
	case Timely:
		return "Timely"
	case Timeout:
		return "Timeout"
	case Invalid:
		return "Invalid"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

// Event is an immutable record of one reputation adjustment. Producers only
// set PeerID and Reason; the Manager fills Delta and At.
type Event struct {
	PeerID uint32
	Delta  int
	Reason Reason
	At     time.Time
}

// Emit writes ev to sink without blocking, and reports whether it was
// accepted. Producers call it from network and timer paths that must not
// stall on a slow consumer.
func Emit(sink chan<- Event, ev Event) bool {
	if sink == nil {
		return false
	}
	select {
	case sink <- ev:
		return true
	default:
		return false
	}
}
