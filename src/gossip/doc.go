// Package gossip disseminates signed messages through the network.
//
// A message is sent to a small random subset of peers (the fan-out), and
// every peer that sees it for the first time delivers it to its local
// handlers and relays it to another random subset, until the hop budget
// carried by the envelope is exhausted. Messages are identified by their
// correlation id; a peer relays a given id at most once, so the traffic
// generated by a message is roughly one send per edge.
//
// Delivery is probabilistic. The fan-out and the hop limit make it very
// likely, but not certain, that every peer receives every message.
package gossip
