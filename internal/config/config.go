// Package config loads the node configuration from config.yml.
//
// A node only needs a handful of settings: where its secondaries live, how
// many nodes must stay alive to keep accepting writes, and how often to
// heartbeat. Everything has a sensible default so a secondary can run with
// an empty file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is absent or zero.
const (
	DefaultHeartbeatIntervalSeconds = 5
	DefaultAliveLimit               = 5
	DefaultSuspectedLimit           = 2
)

// Config is the parsed config.yml.
type Config struct {
	// Secondaries maps follower name → base URL, e.g.
	// secondary_1: http://secondary1:8000
	Secondaries map[string]string `yaml:"secondaries"`

	// Quorum is the number of alive nodes (including the master itself)
	// required to keep accepting writes.
	Quorum int `yaml:"quorum"`

	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`

	// AliveLimit is the consecutive heartbeat failures after which a
	// follower is marked unhealthy; SuspectedLimit the (lower) count after
	// which it is marked suspected.
	AliveLimit     int `yaml:"alive_limit"`
	SuspectedLimit int `yaml:"suspected_limit"`

	// MaxReplicationAttempts bounds per-follower replication retries.
	// Zero means retry forever.
	MaxReplicationAttempts int `yaml:"max_replication_attempts"`

	// LogFile is an optional append-only log target; empty means stderr.
	LogFile string `yaml:"log_file"`
}

// Default returns the configuration of a standalone node with no
// secondaries. Secondaries run fine on it.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates path, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if cfg.Quorum < 1 {
		return nil, fmt.Errorf("quorum must be at least 1, got %d", cfg.Quorum)
	}
	if cfg.Quorum > len(cfg.Secondaries)+1 {
		return nil, fmt.Errorf("quorum %d exceeds cluster size %d",
			cfg.Quorum, len(cfg.Secondaries)+1)
	}
	if cfg.SuspectedLimit > cfg.AliveLimit {
		return nil, fmt.Errorf("suspected_limit (%d) must not exceed alive_limit (%d)",
			cfg.SuspectedLimit, cfg.AliveLimit)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Quorum == 0 {
		c.Quorum = 1
	}
	if c.HeartbeatIntervalSeconds == 0 {
		c.HeartbeatIntervalSeconds = DefaultHeartbeatIntervalSeconds
	}
	if c.AliveLimit == 0 {
		c.AliveLimit = DefaultAliveLimit
	}
	if c.SuspectedLimit == 0 {
		c.SuspectedLimit = DefaultSuspectedLimit
	}
}

// HeartbeatInterval returns the heartbeat period as a Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}
