package net

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/crypto"
	"github.com/catalyst-network/catalyst/src/crypto/keys"
	"github.com/ugorji/go/codec"
)

// PayloadKind tags the payload carried by an Envelope.
type PayloadKind uint8

const (
	// KindUnknown is never sent.
	KindUnknown PayloadKind = iota
	// KindGossip carries a GossipPayload broadcast through the network.
	KindGossip
	// KindPingRequest carries a PingRequest.
	KindPingRequest
	// KindPingResponse carries a PingResponse.
	KindPingResponse
	// KindDeltaHeightRequest carries a DeltaHeightRequest.
	KindDeltaHeightRequest
	// KindDeltaHeightResponse carries a DeltaHeightResponse.
	KindDeltaHeightResponse
	// KindDeltaHistoryRequest carries a DeltaHistoryRequest.
	KindDeltaHistoryRequest
	// KindDeltaHistoryResponse carries a DeltaHistoryResponse.
	KindDeltaHistoryResponse

	numKinds // must be last
)

var kindNames = []string{
	"Unknown",
	"Gossip",
	"PingRequest",
	"PingResponse",
	"DeltaHeightRequest",
	"DeltaHeightResponse",
	"DeltaHistoryRequest",
	"DeltaHistoryResponse",
}

// responseKinds maps each request kind to the kind of its response.
var responseKinds = map[PayloadKind]PayloadKind{
	KindPingRequest:         KindPingResponse,
	KindDeltaHeightRequest:  KindDeltaHeightResponse,
	KindDeltaHistoryRequest: KindDeltaHistoryResponse,
}

// Kinds returns every valid PayloadKind.
func Kinds() []PayloadKind {
	res := make([]PayloadKind, 0, numKinds-1)
	for k := KindUnknown + 1; k < numKinds; k++ {
		res = append(res, k)
	}
	return res
}

// String ...
func (k PayloadKind) String() string {
	if k >= numKinds {
		return fmt.Sprintf("PayloadKind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Valid reports whether k is a known kind other than KindUnknown.
func (k PayloadKind) Valid() bool {
	return k > KindUnknown && k < numKinds
}

// IsRequest reports whether k expects a response.
func (k PayloadKind) IsRequest() bool {
	_, ok := responseKinds[k]
	return ok
}

// IsResponse reports whether k answers a request.
func (k PayloadKind) IsResponse() bool {
	for _, r := range responseKinds {
		if r == k {
			return true
		}
	}
	return false
}

// ResponseKind returns the kind expected in response to k, or KindUnknown if
// k is not a request.
func (k PayloadKind) ResponseKind() PayloadKind {
	return responseKinds[k]
}

// Envelope is the unit of wire exchange between nodes.
type Envelope struct {
	CorrelationID common.CorrelationID

	// SenderID is the id of the immediate hop. Relays overwrite it and
	// countersign.
	SenderID uint32

	// OriginID is the id of the peer that signed the envelope. It equals
	// SenderID except for relayed gossip.
	OriginID uint32

	Kind      PayloadKind
	Payload   []byte
	Signature []byte

	// SenderSignature is produced by the immediate hop over HopHash. It
	// authenticates SenderID.
	SenderSignature []byte

	// HopCount is the number of times a gossip envelope may still be relayed.
	HopCount uint32
}

// Hash returns the digest covered by the signature. SenderID and HopCount are
// excluded because relays modify them.
func (e *Envelope) Hash() []byte {
	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], e.OriginID)
	header[4] = byte(e.Kind)
	return crypto.SHA256(e.CorrelationID[:], header[:], e.Payload)
}

// HopHash returns the digest covered by the sender signature: the origin
// digest bound to the relay fields.
func (e *Envelope) HopHash() []byte {
	var relay [8]byte
	binary.BigEndian.PutUint32(relay[:4], e.SenderID)
	binary.BigEndian.PutUint32(relay[4:], e.HopCount)
	return crypto.SHA256(e.Hash(), relay[:])
}

// Sign sets the signature of the envelope with the given private key.
func (e *Envelope) Sign(privKey *ecdsa.PrivateKey) error {
	sig, err := keys.SignBytes(privKey, e.Hash())
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// Verify reports whether the signature of the envelope was produced by the
// owner of pubKey.
func (e *Envelope) Verify(pubKey *ecdsa.PublicKey) bool {
	if len(e.Signature) == 0 {
		return false
	}
	return keys.VerifyBytes(pubKey, e.Hash(), e.Signature)
}

// Countersign sets the sender signature of the envelope with the given
// private key. It must be called after SenderID and HopCount are final.
func (e *Envelope) Countersign(privKey *ecdsa.PrivateKey) error {
	sig, err := keys.SignBytes(privKey, e.HopHash())
	if err != nil {
		return err
	}
	e.SenderSignature = sig
	return nil
}

// VerifySender reports whether the sender signature of the envelope was
// produced by the owner of pubKey.
func (e *Envelope) VerifySender(pubKey *ecdsa.PublicKey) bool {
	if len(e.SenderSignature) == 0 {
		return false
	}
	return keys.VerifyBytes(pubKey, e.HopHash(), e.SenderSignature)
}

// Copy returns a deep copy of the envelope.
func (e *Envelope) Copy() *Envelope {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	c.Signature = append([]byte(nil), e.Signature...)
	c.SenderSignature = append([]byte(nil), e.SenderSignature...)
	return &c
}

// Marshal encodes the envelope with msgpack.
func (e *Envelope) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, msgpackHandle())
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes an envelope produced by Marshal.
func (e *Envelope) Unmarshal(data []byte) error {
	dec := codec.NewDecoderBytes(data, msgpackHandle())
	return dec.Decode(e)
}

func msgpackHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.RawToString = true
	mh.WriteExt = true
	return mh
}
