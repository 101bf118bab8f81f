package peersync

import (
	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/sirupsen/logrus"
)

// reply is a response routed to the round that requested it.
type reply struct {
	peerID  uint32
	payload net.Payload
}

// round is the bookkeeping of one sync round: the requests it issued and the
// channel their replies are delivered to.
type round struct {
	kind    net.PayloadKind
	peers   map[common.CorrelationID]uint32
	replies chan reply
}

func newRound(kind net.PayloadKind, size int) *round {
	return &round{
		kind:    kind,
		peers:   make(map[common.CorrelationID]uint32, size),
		replies: make(chan reply, size),
	}
}

// register binds a request to the round.
func (m *Manager) register(r *round, cid common.CorrelationID, peerID uint32) {
	m.roundsL.Lock()
	defer m.roundsL.Unlock()
	r.peers[cid] = peerID
	m.rounds[cid] = r
}

// release forgets every request of the round. Late replies are then
// ignored by HandleResponse.
func (m *Manager) release(r *round) {
	m.roundsL.Lock()
	defer m.roundsL.Unlock()
	for cid := range r.peers {
		delete(m.rounds, cid)
	}
}

// HandleResponse delivers the decoded payload of a matched response to the
// round that issued the request. It returns false if no round is waiting
// for it.
func (m *Manager) HandleResponse(cid common.CorrelationID, peerID uint32, payload net.Payload) bool {
	m.roundsL.Lock()
	r, ok := m.rounds[cid]
	if ok {
		if r.peers[cid] != peerID || payload == nil || payload.Kind() != r.kind.ResponseKind() {
			ok = false
		} else {
			delete(m.rounds, cid)
		}
	}
	m.roundsL.Unlock()

	if !ok {
		m.logger.WithFields(logrus.Fields{
			"correlation_id": cid,
			"peer":           peerID,
		}).Debug("No sync round waiting for response")
		return false
	}

	// replies has room for every request of the round, and each request is
	// answered at most once.
	r.replies <- reply{peerID: peerID, payload: payload}
	return true
}
