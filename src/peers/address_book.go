package peers

import (
	"crypto/ecdsa"
	"math/rand"
	"sync"
	"time"
)

// AddressBook is the node's thread-safe view of the permissioned peers. It
// resolves peer ids to addresses and public keys, tracks liveness, and
// samples random subsets of live peers for gossip and sync rounds.
type AddressBook struct {
	l       sync.RWMutex
	selfID  uint32
	peerSet *PeerSet
	dead    map[uint32]bool
	rnd     *rand.Rand
	rndLock sync.Mutex
}

// NewAddressBook creates an AddressBook over peerSet. The peer identified by
// selfID, if present, is never sampled.
func NewAddressBook(peerSet *PeerSet, selfID uint32) *AddressBook {
	return &AddressBook{
		selfID:  selfID,
		peerSet: peerSet,
		dead:    make(map[uint32]bool),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelfID returns the id of the local node.
func (ab *AddressBook) SelfID() uint32 {
	return ab.selfID
}

// Peers returns the underlying PeerSet.
func (ab *AddressBook) Peers() *PeerSet {
	ab.l.RLock()
	defer ab.l.RUnlock()
	return ab.peerSet
}

// AddPeer adds a peer, if unknown, by replacing the underlying PeerSet.
func (ab *AddressBook) AddPeer(peer *Peer) {
	ab.l.Lock()
	defer ab.l.Unlock()
	ab.peerSet = ab.peerSet.WithNewPeer(peer)
}

// ByID returns the peer with the given id.
func (ab *AddressBook) ByID(id uint32) (*Peer, bool) {
	ab.l.RLock()
	defer ab.l.RUnlock()
	p, ok := ab.peerSet.ByID[id]
	return p, ok
}

// Addr returns the network address of a peer.
func (ab *AddressBook) Addr(id uint32) (string, bool) {
	p, ok := ab.ByID(id)
	if !ok {
		return "", false
	}
	return p.NetAddr, true
}

// PubKey returns the public key of a peer.
func (ab *AddressBook) PubKey(id uint32) (*ecdsa.PublicKey, bool) {
	p, ok := ab.ByID(id)
	if !ok {
		return nil, false
	}
	pub := p.PubKey()
	return pub, pub != nil
}

// Len returns the number of known peers other than the local node.
func (ab *AddressBook) Len() int {
	ab.l.RLock()
	defer ab.l.RUnlock()
	n := ab.peerSet.Len()
	if _, ok := ab.peerSet.ByID[ab.selfID]; ok {
		n--
	}
	return n
}

// IsAlive reports whether the last interaction with the peer succeeded.
// Unknown peers are not alive; known peers are alive until marked otherwise.
func (ab *AddressBook) IsAlive(id uint32) bool {
	ab.l.RLock()
	defer ab.l.RUnlock()
	if _, ok := ab.peerSet.ByID[id]; !ok {
		return false
	}
	return !ab.dead[id]
}

// MarkAlive records the outcome of an interaction with a peer.
func (ab *AddressBook) MarkAlive(id uint32, alive bool) {
	ab.l.Lock()
	defer ab.l.Unlock()
	if alive {
		delete(ab.dead, id)
	} else {
		ab.dead[id] = true
	}
}

// Dead returns the known peers currently marked as not alive.
func (ab *AddressBook) Dead() []*Peer {
	ab.l.RLock()
	defer ab.l.RUnlock()

	res := []*Peer{}
	for _, p := range ab.peerSet.Peers {
		if ab.dead[p.ID()] {
			res = append(res, p)
		}
	}
	return res
}

// SamplePeers returns up to n distinct live peers chosen uniformly at random,
// never including the local node or any of the excluded ids. If fewer live
// peers are available, all of them are returned in random order.
func (ab *AddressBook) SamplePeers(n int, exclude ...uint32) []*Peer {
	if n <= 0 {
		return []*Peer{}
	}

	ab.l.RLock()
	candidates := make([]*Peer, 0, len(ab.peerSet.Peers))
	for _, p := range ab.peerSet.Peers {
		id := p.ID()
		if id == ab.selfID || ab.dead[id] || contains(exclude, id) {
			continue
		}
		candidates = append(candidates, p)
	}
	ab.l.RUnlock()

	ab.rndLock.Lock()
	ab.rnd.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	ab.rndLock.Unlock()

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func contains(ids []uint32, id uint32) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
