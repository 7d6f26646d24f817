// Package config loads the fleetd cluster configuration from yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig describes one compute node known to the cluster.
// TPSBenchmark is the static capability score the router sorts by.
type NodeConfig struct {
	ID           string `yaml:"id"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	TPSBenchmark int    `yaml:"tps_benchmark"`
	Enabled      bool   `yaml:"enabled"`
}

// ReplicationConfig tunes the dual-write and replay machinery.
type ReplicationConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Timeout        time.Duration `yaml:"timeout"`
	ReplayInterval time.Duration `yaml:"replay_interval"`
	ReplayBatch    int           `yaml:"replay_batch"`
	MaxRetries     int           `yaml:"max_retries"`
}

// LivenessConfig tunes heartbeat staleness detection.
type LivenessConfig struct {
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
}

// HubConfig locates the central hub.
type HubConfig struct {
	Addr   string `yaml:"addr"`   // base URL clients replicate to
	Listen string `yaml:"listen"` // bind address when running the hub
}

// Config is the full fleetd configuration.
type Config struct {
	LocalNodeID string            `yaml:"local_node_id"`
	DataDir     string            `yaml:"data_dir"`
	Hub         HubConfig         `yaml:"hub"`
	Replication ReplicationConfig `yaml:"replication"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	Nodes       []NodeConfig      `yaml:"nodes"`
}

// Default returns a configuration with working single-node defaults.
func Default() Config {
	return Config{
		LocalNodeID: "local",
		DataDir:     "./data",
		Hub: HubConfig{
			Addr:   "http://127.0.0.1:8001",
			Listen: ":8001",
		},
		Replication: ReplicationConfig{
			Enabled:        true,
			Timeout:        2 * time.Second,
			ReplayInterval: 5 * time.Second,
			ReplayBatch:    100,
			MaxRetries:     5,
		},
		Liveness: LivenessConfig{
			SweepInterval:    5 * time.Second,
			HeartbeatTimeout: 60 * time.Second,
		},
	}
}

// Load reads a yaml config file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	if c.LocalNodeID == "" {
		return fmt.Errorf("config: local_node_id is required")
	}
	if c.Replication.Enabled && c.Hub.Addr == "" {
		return fmt.Errorf("config: hub.addr is required when replication is enabled")
	}
	if c.Replication.MaxRetries < 1 {
		return fmt.Errorf("config: replication.max_retries must be >= 1")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID == "" {
			return fmt.Errorf("config: node entry with empty id")
		}
		if seen[n.ID] {
			return fmt.Errorf("config: duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

// Scores returns the enabled nodes' capability scores keyed by node id -
// the candidate set the router selects from.
func (c Config) Scores() map[string]int {
	scores := make(map[string]int, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Enabled {
			scores[n.ID] = n.TPSBenchmark
		}
	}
	return scores
}
