package common

import (
	"github.com/google/uuid"
)

// CorrelationIDSize is the length in bytes of a CorrelationID.
const CorrelationIDSize = 16

// CorrelationID is the opaque token linking a request to its response, and
// identifying a gossip message across the network.
type CorrelationID [CorrelationIDSize]byte

// NilCorrelationID is the zero value. It is never assigned to a message.
var NilCorrelationID CorrelationID

// NewCorrelationID returns a random (version 4) CorrelationID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.New())
}

// ParseCorrelationID decodes the canonical textual form of a CorrelationID.
func ParseCorrelationID(s string) (CorrelationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilCorrelationID, err
	}
	return CorrelationID(u), nil
}

// CorrelationIDFromBytes copies b into a CorrelationID.
func CorrelationIDFromBytes(b []byte) (CorrelationID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return NilCorrelationID, err
	}
	return CorrelationID(u), nil
}

// IsNil reports whether the id is the zero value.
func (c CorrelationID) IsNil() bool {
	return c == NilCorrelationID
}

// Bytes returns a copy of the raw id.
func (c CorrelationID) Bytes() []byte {
	b := make([]byte, CorrelationIDSize)
	copy(b, c[:])
	return b
}

func (c CorrelationID) String() string {
	return uuid.UUID(c).String()
}
