package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Sync pool policies.
const (
	// PoolPolicyQueue makes a sync round wait for a free slot.
	PoolPolicyQueue = "queue"
	// PoolPolicyReject makes a sync round fail immediately when the pool is
	// full.
	PoolPolicyReject = "reject"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultBindAddr          = "127.0.0.1:42066"
	DefaultServiceAddr       = "127.0.0.1:8000"
	DefaultMaxPool           = 2
	DefaultTCPTimeout        = 1000 * time.Millisecond
	DefaultHeartbeatTimeout  = 5 * time.Second
	DefaultCacheTTL          = 10 * time.Second
	DefaultCacheSize         = 10000
	DefaultFanoutFactor      = 0
	DefaultMaxHops           = 3
	DefaultGossipRateLimit   = 0
	DefaultSampleSize        = 5
	DefaultQuorumThreshold   = 0.5
	DefaultMaxSyncPoolSize   = 1
	DefaultSyncPoolPolicy    = PoolPolicyQueue
	DefaultRequestTimeout    = 5 * time.Second
	DefaultRetryAttempts     = 3
	DefaultRetryBackoffBase  = 500 * time.Millisecond
	DefaultReputationTimely  = 1
	DefaultReputationTimeout = 5
	DefaultReputationInvalid = 20
	DefaultStore             = false
)

// Config contains all the configuration properties of a Catalyst node.
type Config struct {
	// DataDir is the top-level directory containing Catalyst configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node exchanges envelopes
	// with other nodes.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the I/O deadline of a single envelope delivery.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// HeartbeatTimeout is the period of the delta height poll.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// CacheTTL is how long a request waits for its response before it is
	// evicted and the peer penalised.
	CacheTTL time.Duration `mapstructure:"cache-ttl"`

	// CacheSize is the max number of gossip records kept in memory.
	CacheSize int `mapstructure:"cache-size"`

	// FanoutFactor is the number of peers a gossip message is sent to at each
	// hop. Zero means ceil(log2(N)) where N is the number of known peers.
	FanoutFactor int `mapstructure:"fanout"`

	// MaxHops is the number of times a gossip message may be relayed.
	MaxHops int `mapstructure:"max-hops"`

	// GossipRateLimit is the number of gossip envelopes per second accepted
	// from a single sender. Zero disables rate limiting.
	GossipRateLimit float64 `mapstructure:"gossip-rate"`

	// SampleSize is the number of peers queried in a sync round.
	SampleSize int `mapstructure:"sample-size"`

	// QuorumThreshold is the fraction of queried peers that must agree on an
	// answer for it to be accepted. The winning group must be strictly larger.
	QuorumThreshold float64 `mapstructure:"quorum"`

	// MaxSyncPoolSize bounds the number of concurrent sync rounds.
	MaxSyncPoolSize int `mapstructure:"max-sync-pool"`

	// SyncPoolPolicy is either "queue" or "reject". It decides what happens
	// to a sync round requested while the pool is full.
	SyncPoolPolicy string `mapstructure:"sync-pool-policy"`

	// RequestTimeout is the deadline of one sync round.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// RetryAttempts is the number of retries of a failed sync round before
	// it is reported as stalled.
	RetryAttempts int `mapstructure:"retry-attempts"`

	// RetryBackoffBase is the initial interval of the exponential backoff
	// between sync retries.
	RetryBackoffBase time.Duration `mapstructure:"retry-backoff"`

	// ReputationTimely is the reward of a peer that answered in time.
	ReputationTimely int `mapstructure:"rep-timely"`

	// ReputationTimeout is the penalty of a peer that did not answer in time.
	ReputationTimeout int `mapstructure:"rep-timeout"`

	// ReputationInvalid is the penalty of a peer that sent an invalid
	// envelope.
	ReputationInvalid int `mapstructure:"rep-invalid"`

	// Store activates persistant storage of reputation scores.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		BindAddr:          DefaultBindAddr,
		ServiceAddr:       DefaultServiceAddr,
		MaxPool:           DefaultMaxPool,
		TCPTimeout:        DefaultTCPTimeout,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
		CacheTTL:          DefaultCacheTTL,
		CacheSize:         DefaultCacheSize,
		FanoutFactor:      DefaultFanoutFactor,
		MaxHops:           DefaultMaxHops,
		GossipRateLimit:   DefaultGossipRateLimit,
		SampleSize:        DefaultSampleSize,
		QuorumThreshold:   DefaultQuorumThreshold,
		MaxSyncPoolSize:   DefaultMaxSyncPoolSize,
		SyncPoolPolicy:    DefaultSyncPoolPolicy,
		RequestTimeout:    DefaultRequestTimeout,
		RetryAttempts:     DefaultRetryAttempts,
		RetryBackoffBase:  DefaultRetryBackoffBase,
		ReputationTimely:  DefaultReputationTimely,
		ReputationTimeout: DefaultReputationTimeout,
		ReputationInvalid: DefaultReputationInvalid,
		Store:             DefaultStore,
		DatabaseDir:       DefaultDatabaseDir(),
	}
}

// NewTestConfig returns a config object with default values, short timeouts,
// and a special logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.HeartbeatTimeout = 50 * time.Millisecond
	config.CacheTTL = 500 * time.Millisecond
	config.RequestTimeout = 500 * time.Millisecond
	config.RetryBackoffBase = 10 * time.Millisecond
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Validate checks the invariants between configuration values. The reputation
// penalties must be strictly ordered: invalid > timeout > timely > 0.
func (c *Config) Validate() error {
	if c.ReputationTimely <= 0 {
		return fmt.Errorf("rep-timely must be positive, got %d", c.ReputationTimely)
	}
	if c.ReputationTimeout <= c.ReputationTimely {
		return fmt.Errorf("rep-timeout (%d) must be greater than rep-timely (%d)", c.ReputationTimeout, c.ReputationTimely)
	}
	if c.ReputationInvalid <= c.ReputationTimeout {
		return fmt.Errorf("rep-invalid (%d) must be greater than rep-timeout (%d)", c.ReputationInvalid, c.ReputationTimeout)
	}
	if c.CacheTTL <= 0 {
		return errors.New("cache-ttl must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request-timeout must be positive")
	}
	if c.MaxSyncPoolSize < 1 {
		return fmt.Errorf("max-sync-pool must be at least 1, got %d", c.MaxSyncPoolSize)
	}
	if c.SyncPoolPolicy != PoolPolicyQueue && c.SyncPoolPolicy != PoolPolicyReject {
		return fmt.Errorf("sync-pool-policy must be %q or %q, got %q", PoolPolicyQueue, PoolPolicyReject, c.SyncPoolPolicy)
	}
	if c.QuorumThreshold <= 0 || c.QuorumThreshold >= 1 {
		return fmt.Errorf("quorum must be in (0, 1), got %v", c.QuorumThreshold)
	}
	if c.MaxHops < 0 || c.FanoutFactor < 0 || c.RetryAttempts < 0 {
		return errors.New("max-hops, fanout and retry-attempts cannot be negative")
	}
	if c.SampleSize < 1 {
		return fmt.Errorf("sample-size must be at least 1, got %d", c.SampleSize)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache-size must be at least 1, got %d", c.CacheSize)
	}
	return nil
}

// SetDataDir sets the top-level Catalyst directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "catalyst".
// When LogFile is set, entries are also written to that file.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.AddHook(lfshook.NewHook(
				lfshook.PathMap{
					logrus.DebugLevel: c.LogFile,
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
					logrus.FatalLevel: c.LogFile,
					logrus.PanicLevel: c.LogFile,
				},
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "catalyst")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level Catalyst
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Catalyst")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Catalyst")
		} else {
			return filepath.Join(home, ".catalyst")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
