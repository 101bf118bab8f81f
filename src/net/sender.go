package net

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
)

// ErrUnknownPeer is returned when a peer id cannot be resolved.
var ErrUnknownPeer = errors.New("unknown peer")

// AddrResolver resolves peer ids to transport addresses.
type AddrResolver interface {
	Addr(id uint32) (string, bool)
}

// KeyResolver resolves peer ids to public keys.
type KeyResolver interface {
	PubKey(id uint32) (*ecdsa.PublicKey, bool)
}

// Sender delivers envelopes to peers identified by id.
type Sender interface {
	SendEnvelope(peerID uint32, env *Envelope) error
}

// Signer signs outgoing envelopes on behalf of the local node.
type Signer interface {
	// ID returns the id of the local node.
	ID() uint32
	// Sign sets OriginID and Signature on the envelope, and countersigns it.
	Sign(env *Envelope) error
	// Countersign sets SenderID and SenderSignature on the envelope.
	Countersign(env *Envelope) error
}

// Verifier checks the signatures of incoming envelopes.
type Verifier interface {
	// Verify checks the signature of the origin.
	Verify(env *Envelope) bool
	// VerifySender checks the signature of the immediate hop.
	VerifySender(env *Envelope) bool
}

// PeerSender implements Sender on top of a Transport.
type PeerSender struct {
	trans Transport
	addrs AddrResolver
}

// NewPeerSender creates a PeerSender.
func NewPeerSender(trans Transport, addrs AddrResolver) *PeerSender {
	return &PeerSender{
		trans: trans,
		addrs: addrs,
	}
}

// SendEnvelope implements the Sender interface.
func (s *PeerSender) SendEnvelope(peerID uint32, env *Envelope) error {
	addr, ok := s.addrs.Addr(peerID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, peerID)
	}
	return s.trans.Send(addr, env)
}

// KeySigner implements Signer with a private key.
type KeySigner struct {
	id  uint32
	key *ecdsa.PrivateKey
}

// NewKeySigner creates a KeySigner for the node identified by id.
func NewKeySigner(id uint32, key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		id:  id,
		key: key,
	}
}

// ID implements the Signer interface.
func (s *KeySigner) ID() uint32 {
	return s.id
}

// Sign implements the Signer interface. The envelope is also countersigned
// so a freshly signed envelope is ready to send.
func (s *KeySigner) Sign(env *Envelope) error {
	env.OriginID = s.id
	if err := env.Sign(s.key); err != nil {
		return err
	}
	return s.Countersign(env)
}

// Countersign implements the Signer interface.
func (s *KeySigner) Countersign(env *Envelope) error {
	env.SenderID = s.id
	return env.Countersign(s.key)
}

// KeyVerifier implements Verifier by resolving the origin's public key.
type KeyVerifier struct {
	keys KeyResolver
}

// NewKeyVerifier creates a KeyVerifier.
func NewKeyVerifier(keys KeyResolver) *KeyVerifier {
	return &KeyVerifier{
		keys: keys,
	}
}

// Verify implements the Verifier interface. Envelopes from unknown origins
// never verify.
func (v *KeyVerifier) Verify(env *Envelope) bool {
	if env == nil {
		return false
	}
	pub, ok := v.keys.PubKey(env.OriginID)
	if !ok {
		return false
	}
	return env.Verify(pub)
}

// VerifySender implements the Verifier interface. Envelopes from unknown
// senders never verify.
func (v *KeyVerifier) VerifySender(env *Envelope) bool {
	if env == nil {
		return false
	}
	pub, ok := v.keys.PubKey(env.SenderID)
	if !ok {
		return false
	}
	return env.VerifySender(pub)
}
