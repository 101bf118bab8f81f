// Package node implements the reactive component of a Catalyst node.
//
// A Node owns the managers of the peer-to-peer layer and routes every inbound
// envelope to the one in charge of its kind. It implements a small state
// machine whose states are defined in the state package.
//
// Envelopes
//
// Nodes exchange signed envelopes over the transport defined in the net
// package. Each envelope carries a correlation id, the id of the node that
// created it (origin), the id of the node that last forwarded it (sender), and
// a payload kind. The origin signs the envelope and every hop countersigns
// it, so both ids are authenticated. Requests and responses must come
// straight from their origin. The transport acknowledges an envelope as soon
// as the receiving node has taken it. Answers to requests travel back as
// separate envelopes carrying the correlation id of the request.
//
// Requests and responses
//
// Every request sent by a node is registered with the correlation manager
// before it leaves. A response is only processed if it matches a pending
// request from the same peer with the expected kind. Responses that arrive
// after their TTL are dropped, and the peer pays for the timeout.
//
// Gossip
//
// Broadcast hands a message to the gossip manager, which sends it to a random
// sample of peers. Receivers relay it at most MaxHops times and deliver it to
// the handlers of its topic. Handlers are registered with OnGossip.
//
// Delta height sync
//
// At every heartbeat, the node asks a sample of its peers for the index of
// their latest delta, and accepts the answer backed by a quorum. The node is
// Syncing until a first answer is accepted, and Running afterwards. When a
// sync exhausts its retries, the node is Stalled until the next successful
// round.
//
// Reputation
//
// Timely answers, timeouts, and invalid envelopes are reported to the
// reputation manager, whose scores break ties between competing answers of a
// sync round.
package node
