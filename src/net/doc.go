// Package net defines the wire envelope exchanged by Catalyst nodes and the
// transports that carry it.
//
// Every message, whether a request, a response or a gossip broadcast, travels
// as an Envelope. The envelope carries a CorrelationID, the id of the
// immediate sender, the id of the signer (origin), a PayloadKind tag, the
// msgpack-encoded payload, the origin's signature and, for gossip, the number
// of hops it may still travel.
//
// The origin's signature covers the correlation id, origin, kind and payload.
// Each hop countersigns the envelope over the origin digest, its own id and
// the hop count, so the immediate sender is authenticated as well. Relays
// replace the countersignature and keep the origin's signature.
//
// Transports deliver envelopes one way. Send returns once the remote
// transport has handed the envelope to its consumer; any logical response is
// a separate envelope travelling in the other direction with the same
// CorrelationID. There are two implementations:
//
// - Inmem: in-memory transport used for testing and simulations
//
// - TCP: communicating over plain TCP
//
// To use a TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes.
// If BindAddr is a local address not reachable by other peers, it is usefull
// to set AdvertiseAddr to the reachable public address.
package net
