package node

import (
	"errors"

	"github.com/catalyst-network/catalyst/src/gossip"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/catalyst-network/catalyst/src/node/state"
	"github.com/catalyst-network/catalyst/src/reputation"
	"github.com/sirupsen/logrus"
)

// ErrShuttingDown is returned to the senders of envelopes received during
// shutdown.
var ErrShuttingDown = errors.New("node is shutting down")

// handlerFunc processes one inbound envelope.
type handlerFunc func(env *net.Envelope) error

// answerFunc produces the response to a decoded request.
type answerFunc func(req net.Payload) (net.Payload, error)

// responseFunc consumes a response matched to one of our requests.
type responseFunc func(env *net.Envelope, resp net.Payload)

func (n *Node) registerHandlers() {
	n.handlers = map[net.PayloadKind]handlerFunc{
		net.KindGossip:               n.processGossip,
		net.KindPingRequest:          n.request(n.answerPing),
		net.KindDeltaHeightRequest:   n.request(n.answerDeltaHeight),
		net.KindDeltaHistoryRequest:  n.request(n.answerDeltaHistory),
		net.KindPingResponse:         n.response(n.processPong),
		net.KindDeltaHeightResponse:  n.response(n.processSyncResponse),
		net.KindDeltaHistoryResponse: n.response(n.processSyncResponse),
	}
}

// processRPC acknowledges an inbound envelope and routes it to the handler
// of its kind. Responses to our requests travel as separate envelopes, so the
// acknowledgement only tells the sender the envelope was taken.
func (n *Node) processRPC(rpc net.RPC) {
	if n.GetState() == state.Shutdown {
		rpc.Respond(ErrShuttingDown)
		return
	}

	rpc.Respond(nil)

	env := rpc.Envelope
	if env == nil {
		return
	}

	h, ok := n.handlers[env.Kind]
	if !ok {
		n.metrics.Envelopes.WithLabelValues(env.Kind.String(), "unknown").Inc()
		n.logger.WithFields(logrus.Fields{
			"kind":   env.Kind,
			"sender": env.SenderID,
		}).Debug("Dropping envelope of unknown kind")
		return
	}

	outcome := "handled"
	if err := h(env); err != nil {
		outcome = "error"
		if errors.Is(err, errInvalidEnvelope) {
			outcome = "invalid"
		}
		n.logger.WithFields(logrus.Fields{
			"kind":           env.Kind,
			"sender":         env.SenderID,
			"correlation_id": env.CorrelationID,
			"error":          err,
		}).Debug("Processing envelope")
	}
	n.metrics.Envelopes.WithLabelValues(env.Kind.String(), outcome).Inc()
}

var errInvalidEnvelope = errors.New("invalid envelope")

func (n *Node) processGossip(env *net.Envelope) error {
	err := n.gossip.ReceiveAsync(env)
	if errors.Is(err, gossip.ErrClosed) {
		return nil
	}
	return err
}

// authenticate checks both signatures of a request or response. An envelope
// whose sender signature does not verify cannot be attributed, so it is
// dropped without a penalty. Otherwise the authenticated sender pays for an
// envelope it relayed or that carries a bad origin signature.
func (n *Node) authenticate(env *net.Envelope) error {
	if !n.verifier.VerifySender(env) {
		return errInvalidEnvelope
	}
	if env.SenderID != env.OriginID || !n.verifier.Verify(env) {
		n.penalise(env.SenderID)
		return errInvalidEnvelope
	}
	return nil
}

// request wraps an answerFunc. Requests must come straight from their origin
// and carry valid signatures. The response reuses the correlation id of the
// request.
func (n *Node) request(answer answerFunc) handlerFunc {
	return func(env *net.Envelope) error {
		if err := n.authenticate(env); err != nil {
			return err
		}

		req, err := net.DecodePayload(env.Kind, env.Payload)
		if err != nil {
			n.penalise(env.SenderID)
			return errInvalidEnvelope
		}

		resp, err := answer(req)
		if err != nil {
			return err
		}

		out, err := net.NewEnvelope(env.CorrelationID, n.ID(), resp)
		if err != nil {
			return err
		}
		if err := n.signer.Sign(out); err != nil {
			return err
		}

		return n.sender.SendEnvelope(env.OriginID, out)
	}
}

// response wraps a responseFunc. Only well-formed responses matching one of
// our pending requests reach fn. A malformed response is penalized before
// matching, so it never earns a timely answer. Responses that match nothing
// are dropped without a penalty: they are usually late answers to requests
// already evicted.
func (n *Node) response(fn responseFunc) handlerFunc {
	return func(env *net.Envelope) error {
		if err := n.authenticate(env); err != nil {
			return err
		}

		resp, err := net.DecodePayload(env.Kind, env.Payload)
		if err != nil {
			n.penalise(env.SenderID)
			return errInvalidEnvelope
		}

		if _, ok := n.correlation.TryMatchResponse(env); !ok {
			return nil
		}

		fn(env, resp)
		return nil
	}
}

// penalise reports an invalid envelope from a member of the network. Unknown
// senders have no score to lower.
func (n *Node) penalise(peerID uint32) {
	if _, ok := n.book.ByID(peerID); !ok {
		return
	}
	if !reputation.Emit(n.reputation.Sink(), reputation.Event{PeerID: peerID, Reason: reputation.Invalid}) {
		n.logger.WithField("peer", peerID).Warn("Reputation sink full, dropping event")
	}
}
