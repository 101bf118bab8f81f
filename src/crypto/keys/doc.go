// Package keys implements the public key cryptography used by Catalyst nodes.
//
// Every node owns a secp256k1 key-pair. The private key signs outgoing
// envelopes, and peers verify those signatures with the public key published
// in the peer list. The uint32 peer identifier carried on the wire is derived
// from the uncompressed public key.
package keys
