// Package reputation scores peers from the outcome of the requests sent to
// them and the validity of the envelopes they send.
//
// Producers (correlation managers, the gossip manager) write Events into a
// single fan-in channel returned by Manager.Sink. One consumer loop applies
// the Policy to every event, updates the score of the peer, optionally
// persists it, and republishes the event, with its delta filled in, to every
// subscriber. Subscribers implement eviction or banning policies; the manager
// itself never removes peers.
package reputation
