package reputation

import (
	"fmt"
)

// Policy holds the magnitude of the adjustment applied for each Reason:
// Timely adds Timely, Timeout subtracts Timeout, Invalid subtracts Invalid.
type Policy struct {
	Timely  int
	Timeout int
	Invalid int
}

// DefaultPolicy returns the default adjustments.
func DefaultPolicy() Policy {
	return Policy{
		Timely:  1,
		Timeout: 5,
		Invalid: 20,
	}
}

// Validate enforces Invalid > Timeout > Timely > 0, so that malformed traffic
// costs more than unresponsiveness, which costs more than a single good
// answer earns.
func (p Policy) Validate() error {
	if p.Timely <= 0 {
		return fmt.Errorf("timely reward must be positive, got %d", p.Timely)
	}
	if p.Timeout <= p.Timely {
		return fmt.Errorf("timeout penalty (%d) must be greater than timely reward (%d)", p.Timeout, p.Timely)
	}
	if p.Invalid <= p.Timeout {
		return fmt.Errorf("invalid penalty (%d) must be greater than timeout penalty (%d)", p.Invalid, p.Timeout)
	}
	return nil
}

// Delta returns the signed score adjustment for a Reason.
func (p Policy) Delta(r Reason) int {
	switch r {
	case Timely:
		return p.Timely
	case Timeout:
		return -p.Timeout
	case Invalid:
		return -p.Invalid
	default:
		return 0
	}
}
