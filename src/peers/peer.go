package peers

import (
	"crypto/ecdsa"
	"strings"
	"sync"

	"github.com/catalyst-network/catalyst/src/crypto/keys"
)

// Peer is a member of the permissioned network.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string

	once   sync.Once
	id     uint32
	pubKey *ecdsa.PublicKey
}

// NewPeer is a factory method for creating a new Peer instance.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	return &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}
}

func (p *Peer) init() {
	p.once.Do(func() {
		raw := p.PubKeyBytes()
		p.id = keys.PublicKeyID(raw)
		p.pubKey = keys.ToPublicKey(raw)
	})
}

// ID returns the FNV-1a hash of the public key.
func (p *Peer) ID() uint32 {
	p.init()
	return p.id
}

// PubKeyString returns the upper-case version of PubKeyHex. It is used for
// indexing in maps with string keys.
func (p *Peer) PubKeyString() string {
	return "0X" + strings.TrimPrefix(strings.ToUpper(p.PubKeyHex), "0X")
}

// PubKeyBytes returns the raw public key, or nil if PubKeyHex is malformed.
func (p *Peer) PubKeyBytes() []byte {
	b, err := keys.DecodePublicKeyHex(p.PubKeyHex)
	if err != nil {
		return nil
	}
	return b
}

// PubKey returns the parsed public key, or nil if PubKeyHex is not a valid
// point.
func (p *Peer) PubKey() *ecdsa.PublicKey {
	p.init()
	return p.pubKey
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, peer uint32) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID() != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
