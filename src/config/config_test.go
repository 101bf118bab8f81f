package config

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if err := NewTestConfig(t, logrus.DebugLevel).Validate(); err != nil {
		t.Fatalf("test config should be valid: %v", err)
	}
}

func TestValidateReputationOrdering(t *testing.T) {
	cases := []struct {
		k, m, n int
		valid   bool
	}{
		{1, 5, 20, true},
		{1, 2, 3, true},
		{0, 5, 20, false},
		{5, 5, 20, false},
		{1, 20, 20, false},
		{1, 20, 5, false},
		{-1, 5, 20, false},
	}

	for _, c := range cases {
		conf := NewDefaultConfig()
		conf.ReputationTimely = c.k
		conf.ReputationTimeout = c.m
		conf.ReputationInvalid = c.n

		err := conf.Validate()
		if c.valid && err != nil {
			t.Fatalf("k=%d m=%d n=%d should be valid: %v", c.k, c.m, c.n, err)
		}
		if !c.valid && err == nil {
			t.Fatalf("k=%d m=%d n=%d should be rejected", c.k, c.m, c.n)
		}
	}
}

func TestValidateSyncSettings(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SyncPoolPolicy = "drop"
	if conf.Validate() == nil {
		t.Fatalf("unknown pool policy should be rejected")
	}

	conf = NewDefaultConfig()
	conf.MaxSyncPoolSize = 0
	if conf.Validate() == nil {
		t.Fatalf("empty sync pool should be rejected")
	}

	conf = NewDefaultConfig()
	conf.QuorumThreshold = 1.5
	if conf.Validate() == nil {
		t.Fatalf("quorum above 1 should be rejected")
	}

	conf = NewDefaultConfig()
	conf.CacheTTL = 0
	if conf.Validate() == nil {
		t.Fatalf("zero ttl should be rejected")
	}
}

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/catalyst")

	if conf.DatabaseDir != filepath.Join("/tmp/catalyst", DefaultBadgerFile) {
		t.Fatalf("DatabaseDir should follow DataDir, got %s", conf.DatabaseDir)
	}
	if conf.Keyfile() != filepath.Join("/tmp/catalyst", DefaultKeyfile) {
		t.Fatalf("unexpected Keyfile %s", conf.Keyfile())
	}

	conf.DatabaseDir = "/custom"
	conf.SetDataDir("/tmp/other")
	if conf.DatabaseDir != "/custom" {
		t.Fatalf("explicit DatabaseDir should not be overridden")
	}
}

func TestLogLevel(t *testing.T) {
	if LogLevel("warn") != logrus.WarnLevel {
		t.Fatalf("warn should parse to WarnLevel")
	}
	if LogLevel("nonsense") != logrus.DebugLevel {
		t.Fatalf("unknown levels should default to DebugLevel")
	}
}
