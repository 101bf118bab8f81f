package node

import (
	"time"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/correlation"
	"github.com/catalyst-network/catalyst/src/net"
)

// Request implements the peersync.Requester interface. The request is signed,
// registered with the correlation manager, and sent to the peer. A peer that
// cannot be reached is marked as not alive.
func (n *Node) Request(peerID uint32, cid common.CorrelationID, req net.Payload, ttl time.Duration) error {
	env, err := net.NewEnvelope(cid, n.ID(), req)
	if err != nil {
		return err
	}
	if err := n.signer.Sign(env); err != nil {
		return err
	}

	err = n.correlation.AddPendingRequest(correlation.PendingRequest{
		CorrelationID: env.CorrelationID,
		PeerID:        peerID,
		ExpectedKind:  req.Kind().ResponseKind(),
		TTL:           ttl,
	})
	if err != nil {
		return err
	}

	n.metrics.Requests.WithLabelValues(req.Kind().String()).Inc()

	if err := n.sender.SendEnvelope(peerID, env); err != nil {
		// the pending request is left to expire, which costs the peer a
		// Timeout
		n.book.MarkAlive(peerID, false)
		return err
	}

	return nil
}

// Ping sends a PingRequest to a peer. The peer is marked alive when the pong
// comes back.
func (n *Node) Ping(peerID uint32) error {
	return n.Request(peerID, common.NewCorrelationID(), &net.PingRequest{}, n.conf.CacheTTL)
}

func (n *Node) answerPing(req net.Payload) (net.Payload, error) {
	return &net.PingResponse{Height: n.ledger.Height()}, nil
}

func (n *Node) answerDeltaHeight(req net.Payload) (net.Payload, error) {
	return &net.DeltaHeightResponse{Index: n.ledger.LatestIndex()}, nil
}

func (n *Node) answerDeltaHistory(req net.Payload) (net.Payload, error) {
	r := req.(*net.DeltaHistoryRequest)
	return &net.DeltaHistoryResponse{
		Indexes: n.ledger.DeltaIndexes(r.Height, r.Range),
	}, nil
}

func (n *Node) processPong(env *net.Envelope, resp net.Payload) {
	n.book.MarkAlive(env.SenderID, true)
}

func (n *Node) processSyncResponse(env *net.Envelope, resp net.Payload) {
	n.book.MarkAlive(env.SenderID, true)
	n.sync.HandleResponse(env.CorrelationID, env.SenderID, resp)
}
