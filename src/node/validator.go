package node

import (
	"crypto/ecdsa"
	"sync"

	"github.com/catalyst-network/catalyst/src/crypto/keys"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/catalyst-network/catalyst/src/peers"
)

// Validator holds the identity of a node: its private key and moniker.
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	once     sync.Once
	id       uint32
	pubBytes []byte
	pubHex   string
}

// NewValidator is a factory method for a Validator
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	return &Validator{
		Key:     key,
		Moniker: moniker,
	}
}

func (v *Validator) init() {
	v.once.Do(func() {
		v.pubBytes = keys.FromPublicKey(&v.Key.PublicKey)
		v.pubHex = keys.PublicKeyHex(&v.Key.PublicKey)
		v.id = keys.PublicKeyID(v.pubBytes)
	})
}

// ID returns the peer id of the validator.
func (v *Validator) ID() uint32 {
	v.init()
	return v.id
}

// PublicKeyBytes returns the validator's public key as a byte array
func (v *Validator) PublicKeyBytes() []byte {
	v.init()
	return v.pubBytes
}

// PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	v.init()
	return v.pubHex
}

// Peer returns the validator as a member of the network reachable at addr.
func (v *Validator) Peer(addr string) *peers.Peer {
	return peers.NewPeer(v.PublicKeyHex(), addr, v.Moniker)
}

// Signer returns a net.Signer that signs envelopes with the validator's key.
func (v *Validator) Signer() net.Signer {
	return net.NewKeySigner(v.ID(), v.Key)
}
