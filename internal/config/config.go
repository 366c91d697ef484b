// Package config loads the operator's actiongate.yaml.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/actiongate/internal/alert"
	"github.com/ppiankov/actiongate/internal/audit"
	"github.com/ppiankov/actiongate/internal/gate"
)

// DefaultPath is used when no config path is given.
const DefaultPath = "actiongate.yaml"

// DefaultPort is the gRPC listen port.
const DefaultPort = 50061

// AuditConfig selects where decisions are recorded beyond the in-memory log.
// Empty paths disable the corresponding sink.
type AuditConfig struct {
	Capacity  int    `yaml:"capacity"`
	ChainLog  string `yaml:"chain_log"`
	SQLite    string `yaml:"sqlite"`
	FlushPath string `yaml:"flush_path"`
}

// ServerConfig holds the API server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Config is the full operator configuration.
type Config struct {
	Constitution string              `yaml:"constitution"`
	Gate         gate.Config         `yaml:"gate"`
	Audit        AuditConfig         `yaml:"audit"`
	HoldsDir     string              `yaml:"holds_dir"`
	Alerts       []alert.AlertConfig `yaml:"alerts"`
	Server       ServerConfig        `yaml:"server"`
}

// Default returns the built-in configuration. The gate command is unset, so
// every gate-requiring action is held until an operator configures one.
func Default() *Config {
	return &Config{
		Constitution: "constitution.yaml",
		Gate: gate.Config{
			ArtifactPath: ".actiongate/gate-summary.json",
			Timeout:      gate.DefaultTimeout,
			HistoryPath:  ".actiongate/gate-history.json",
			Policy:       gate.DefaultPolicy(),
		},
		Audit: AuditConfig{
			Capacity:  audit.DefaultCapacity,
			ChainLog:  ".actiongate/audit.jsonl",
			FlushPath: ".actiongate/decisions.jsonl",
		},
		HoldsDir: ".actiongate/holds",
		Server:   ServerConfig{Port: DefaultPort},
	}
}

// Load reads configuration from a YAML file.
// Empty path falls back to ./actiongate.yaml.
// Missing file returns defaults. Invalid YAML or values return an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults; only fields present in data change.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	if err := c.Gate.Policy.Validate(); err != nil {
		return err
	}
	if c.Gate.Timeout <= 0 {
		return fmt.Errorf("gate.timeout must be positive, got %v", c.Gate.Timeout)
	}
	if c.Audit.Capacity <= 0 {
		return fmt.Errorf("audit.capacity must be positive, got %d", c.Audit.Capacity)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for i, a := range c.Alerts {
		if a.URL == "" {
			return fmt.Errorf("alerts[%d]: url is required", i)
		}
	}
	return nil
}

// DefaultYAML returns the commented configuration written by `actiongate init`.
func DefaultYAML() string {
	return fmt.Sprintf(`# actiongate configuration

# Constitution manifest. Every decision is denied while it is missing or invalid.
constitution: constitution.yaml

gate:
  # Validation suite. It must write its summary JSON to $ACTIONGATE_ARTIFACT.
  # Left empty, every commit, push and promote is held.
  command: []
  artifact: .actiongate/gate-summary.json
  timeout: %s
  # strict_all requires exit code 0 and a 100%% pass rate.
  strict_all: false
  min_pass_ratio: 0.7
  allow_degraded: true
  history: .actiongate/gate-history.json

audit:
  capacity: %d
  # Hash-chained log; check it with "actiongate audit verify".
  chain_log: .actiongate/audit.jsonl
  # Optional SQLite copy of every decision.
  sqlite: ""
  # JSON lines appended by every CLI run and by SaveAuditLog.
  flush_path: .actiongate/decisions.jsonl

holds_dir: .actiongate/holds

# Webhooks notified on matching modes or risk flags.
alerts: []
#  - url: https://hooks.slack.com/services/...
#    format: slack
#    events: [deny, hold]

server:
  port: %d
`, gate.DefaultTimeout, audit.DefaultCapacity, DefaultPort)
}
