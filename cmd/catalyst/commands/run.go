package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/catalyst-network/catalyst/src/catalyst"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a Catalyst node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runCatalyst,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runCatalyst(cmd *cobra.Command, args []string) error {
	engine := catalyst.NewCatalyst(&_config.Catalyst)

	if err := engine.Init(); err != nil {
		_config.Catalyst.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		_config.Catalyst.Logger().Info("Shutting down")
		engine.Shutdown()
	}()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Catalyst.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Catalyst.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Catalyst.LogFile, "Optional file receiving a copy of the logs")
	cmd.Flags().String("moniker", _config.Catalyst.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Catalyst.BindAddr, "Listen IP:Port for catalyst node")
	cmd.Flags().StringP("advertise", "a", _config.Catalyst.AdvertiseAddr, "Advertise IP:Port for catalyst node")
	cmd.Flags().DurationP("timeout", "t", _config.Catalyst.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.Catalyst.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.Catalyst.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Catalyst.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Catalyst.Store, "Persist reputation scores in badgerDB instead of in-mem")
	cmd.Flags().String("db", _config.Catalyst.DatabaseDir, "Dabatabase directory")

	// Correlation
	cmd.Flags().Duration("cache-ttl", _config.Catalyst.CacheTTL, "Time a request waits for its response")

	// Gossip
	cmd.Flags().Int("cache-size", _config.Catalyst.CacheSize, "Number of gossip messages kept in memory")
	cmd.Flags().Int("fanout", _config.Catalyst.FanoutFactor, "Peers per gossip hop (0 for ceil(log2(peers)))")
	cmd.Flags().Int("max-hops", _config.Catalyst.MaxHops, "Number of times a gossip message is relayed")
	cmd.Flags().Float64("gossip-rate", _config.Catalyst.GossipRateLimit, "Gossip envelopes per second accepted from a peer (0 for unlimited)")

	// Sync
	cmd.Flags().Duration("heartbeat", _config.Catalyst.HeartbeatTimeout, "Time between delta height polls")
	cmd.Flags().Int("sample-size", _config.Catalyst.SampleSize, "Number of peers queried per sync round")
	cmd.Flags().Float64("quorum", _config.Catalyst.QuorumThreshold, "Fraction of queried peers that must agree")
	cmd.Flags().Int("max-sync-pool", _config.Catalyst.MaxSyncPoolSize, "Max number of concurrent sync rounds")
	cmd.Flags().String("sync-pool-policy", _config.Catalyst.SyncPoolPolicy, "queue or reject sync rounds when the pool is full")
	cmd.Flags().Duration("request-timeout", _config.Catalyst.RequestTimeout, "Deadline of a sync round")
	cmd.Flags().Int("retry-attempts", _config.Catalyst.RetryAttempts, "Retries of a failed sync round")
	cmd.Flags().Duration("retry-backoff", _config.Catalyst.RetryBackoffBase, "Initial backoff between sync retries")

	// Reputation
	cmd.Flags().Int("rep-timely", _config.Catalyst.ReputationTimely, "Reward of a timely answer")
	cmd.Flags().Int("rep-timeout", _config.Catalyst.ReputationTimeout, "Penalty of a timeout")
	cmd.Flags().Int("rep-invalid", _config.Catalyst.ReputationInvalid, "Penalty of an invalid envelope")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Catalyst.SetDataDir(_config.Catalyst.DataDir)

	logFields := logrus.Fields{
		"catalyst.DataDir":          _config.Catalyst.DataDir,
		"catalyst.BindAddr":         _config.Catalyst.BindAddr,
		"catalyst.AdvertiseAddr":    _config.Catalyst.AdvertiseAddr,
		"catalyst.ServiceAddr":      _config.Catalyst.ServiceAddr,
		"catalyst.NoService":        _config.Catalyst.NoService,
		"catalyst.MaxPool":          _config.Catalyst.MaxPool,
		"catalyst.Store":            _config.Catalyst.Store,
		"catalyst.LogLevel":         _config.Catalyst.LogLevel,
		"catalyst.Moniker":          _config.Catalyst.Moniker,
		"catalyst.HeartbeatTimeout": _config.Catalyst.HeartbeatTimeout,
		"catalyst.TCPTimeout":       _config.Catalyst.TCPTimeout,
		"catalyst.CacheTTL":         _config.Catalyst.CacheTTL,
		"catalyst.CacheSize":        _config.Catalyst.CacheSize,
		"catalyst.FanoutFactor":     _config.Catalyst.FanoutFactor,
		"catalyst.MaxHops":          _config.Catalyst.MaxHops,
		"catalyst.SampleSize":       _config.Catalyst.SampleSize,
		"catalyst.QuorumThreshold":  _config.Catalyst.QuorumThreshold,
		"catalyst.MaxSyncPoolSize":  _config.Catalyst.MaxSyncPoolSize,
		"catalyst.SyncPoolPolicy":   _config.Catalyst.SyncPoolPolicy,
		"catalyst.RequestTimeout":   _config.Catalyst.RequestTimeout,
		"catalyst.RetryAttempts":    _config.Catalyst.RetryAttempts,
	}

	if _config.Catalyst.Store {
		logFields["catalyst.DatabaseDir"] = _config.Catalyst.DatabaseDir
	}

	_config.Catalyst.Logger().WithFields(logFields).Debug("RUN")

	return _config.Catalyst.Validate()
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/catalyst.toml (.json, .yaml also work)
	viper.SetConfigName("catalyst")               // name of config file (without extension)
	viper.AddConfigPath(_config.Catalyst.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Catalyst.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Catalyst.Logger().Debugf("No config file found in: %s", _config.Catalyst.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
