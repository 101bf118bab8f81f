package net

import (
	"bytes"
	"fmt"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/ledger"
	"github.com/ugorji/go/codec"
)

// Payload is implemented by every struct that can travel in an Envelope.
type Payload interface {
	Kind() PayloadKind
}

// GossipPayload is broadcast through the network. Topic selects the local
// handlers it is delivered to.
type GossipPayload struct {
	Topic string
	Data  []byte
}

// PingRequest asks a peer to prove it is alive.
type PingRequest struct{}

// PingResponse answers a PingRequest with the responder's height.
type PingResponse struct {
	Height uint64
}

// DeltaHeightRequest asks a peer for the index of its latest delta.
type DeltaHeightRequest struct{}

// DeltaHeightResponse answers a DeltaHeightRequest.
type DeltaHeightResponse struct {
	Index ledger.DeltaIndex
}

// DeltaHistoryRequest asks a peer for the delta indexes
// [Height, Height+Range).
type DeltaHistoryRequest struct {
	Height uint64
	Range  uint64
}

// DeltaHistoryResponse answers a DeltaHistoryRequest.
type DeltaHistoryResponse struct {
	Indexes []ledger.DeltaIndex
}

// Kind implements the Payload interface.
func (GossipPayload) Kind() PayloadKind { return KindGossip }

// Kind implements the Payload interface.
func (PingRequest) Kind() PayloadKind { return KindPingRequest }

// Kind implements the Payload interface.
func (PingResponse) Kind() PayloadKind { return KindPingResponse }

// Kind implements the Payload interface.
func (DeltaHeightRequest) Kind() PayloadKind { return KindDeltaHeightRequest }

// Kind implements the Payload interface.
func (DeltaHeightResponse) Kind() PayloadKind { return KindDeltaHeightResponse }

// Kind implements the Payload interface.
func (DeltaHistoryRequest) Kind() PayloadKind { return KindDeltaHistoryRequest }

// Kind implements the Payload interface.
func (DeltaHistoryResponse) Kind() PayloadKind { return KindDeltaHistoryResponse }

// payloadFactories allocates the concrete payload for each kind.
var payloadFactories = map[PayloadKind]func() Payload{
	KindGossip:               func() Payload { return &GossipPayload{} },
	KindPingRequest:          func() Payload { return &PingRequest{} },
	KindPingResponse:         func() Payload { return &PingResponse{} },
	KindDeltaHeightRequest:   func() Payload { return &DeltaHeightRequest{} },
	KindDeltaHeightResponse:  func() Payload { return &DeltaHeightResponse{} },
	KindDeltaHistoryRequest:  func() Payload { return &DeltaHistoryRequest{} },
	KindDeltaHistoryResponse: func() Payload { return &DeltaHistoryResponse{} },
}

// EncodePayload encodes a payload with msgpack.
func EncodePayload(p Payload) ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, msgpackHandle())
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// DecodePayload decodes the payload of the given kind. The result is a
// pointer to the concrete payload struct, eg. *DeltaHeightResponse.
func DecodePayload(kind PayloadKind, data []byte) (Payload, error) {
	factory, ok := payloadFactories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown payload kind %s", kind)
	}
	p := factory()
	dec := codec.NewDecoderBytes(data, msgpackHandle())
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
	}
	return p, nil
}

// NewEnvelope wraps a payload in an unsigned envelope. A nil correlation id
// is replaced with a fresh one.
func NewEnvelope(cid common.CorrelationID, originID uint32, p Payload) (*Envelope, error) {
	data, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}
	if cid.IsNil() {
		cid = common.NewCorrelationID()
	}
	return &Envelope{
		CorrelationID: cid,
		SenderID:      originID,
		OriginID:      originID,
		Kind:          p.Kind(),
		Payload:       data,
	}, nil
}
