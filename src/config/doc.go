// Package config defines the configuration of a Catalyst node.
//
// The Config object groups the settings of every component owned by the node:
// transport, gossip, correlation, reputation and sync. Values are bound from
// command line flags and from an optional catalyst.toml, catalyst.yaml or
// catalyst.json file in the data directory (cf cmd/catalyst). NewDefaultConfig
// returns conservative defaults suitable for a small permissioned network.
package config
