package node

import (
	"github.com/catalyst-network/catalyst/src/config"
	"github.com/catalyst-network/catalyst/src/gossip"
	"github.com/catalyst-network/catalyst/src/peersync"
	"github.com/catalyst-network/catalyst/src/reputation"
)

// MetricsNamespace prefixes every metric exposed by a node.
const MetricsNamespace = "catalyst"

func gossipConfig(conf *config.Config) gossip.Config {
	return gossip.Config{
		FanoutFactor:    conf.FanoutFactor,
		MaxHops:         uint32(conf.MaxHops),
		CacheSize:       conf.CacheSize,
		RateLimit:       conf.GossipRateLimit,
		SendParallelism: gossip.DefaultSendParallelism,
	}
}

func syncConfig(conf *config.Config) peersync.Config {
	policy := peersync.PoolQueue
	if conf.SyncPoolPolicy == config.PoolPolicyReject {
		policy = peersync.PoolReject
	}
	return peersync.Config{
		SampleSize:       conf.SampleSize,
		QuorumThreshold:  conf.QuorumThreshold,
		MaxSyncPoolSize:  conf.MaxSyncPoolSize,
		PoolPolicy:       policy,
		RequestTimeout:   conf.RequestTimeout,
		RetryAttempts:    conf.RetryAttempts,
		RetryBackoffBase: conf.RetryBackoffBase,
	}
}

func reputationPolicy(conf *config.Config) reputation.Policy {
	return reputation.Policy{
		Timely:  conf.ReputationTimely,
		Timeout: conf.ReputationTimeout,
		Invalid: conf.ReputationInvalid,
	}
}
