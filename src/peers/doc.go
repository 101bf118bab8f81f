// Package peers defines a Catalyst peer and the collections used to reach
// and sample peers.
//
// A peer is identified by its public key. The uint32 derived from that key,
// see Peer.ID, is the identifier carried on the wire and used as the key of
// reputation scores. A peer also advertises the network address where it can
// be reached.
//
// Upon starting up, a node expects to find a peers.json file in its data
// directory, listing the permissioned peers of the network. The AddressBook
// built from that list is owned by the node. The gossip and sync managers
// only read from it, to sample random subsets of live peers and to resolve
// the public keys used to verify incoming envelopes.
package peers
