package gossip

import (
	"time"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/net"
)

// Message is a gossip payload as delivered to local handlers.
type Message struct {
	CorrelationID common.CorrelationID
	OriginID      uint32
	Topic         string
	Data          []byte
}

// Record is the state kept for a gossip message seen by this node.
type Record struct {
	CorrelationID common.CorrelationID
	OriginID      uint32
	RemainingHops uint32
	FirstSeenAt   time.Time
	Payload       *net.GossipPayload
	// Relayed is set once the message has been forwarded.
	Relayed bool

	envelope *net.Envelope
}

// Message returns the payload of the record as a Message.
func (r *Record) Message() Message {
	return Message{
		CorrelationID: r.CorrelationID,
		OriginID:      r.OriginID,
		Topic:         r.Payload.Topic,
		Data:          r.Payload.Data,
	}
}

func (r *Record) copy() *Record {
	c := *r
	c.envelope = nil
	if r.Payload != nil {
		p := *r.Payload
		p.Data = append([]byte(nil), r.Payload.Data...)
		c.Payload = &p
	}
	return &c
}
