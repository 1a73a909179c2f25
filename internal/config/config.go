// Package config loads the ivault configuration. Values are merged from
// three sources, later sources winning: built-in defaults, an optional
// YAML file, and IVAULT_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultDirName is the data directory under the user's home.
const DefaultDirName = ".ivault"

// DefaultFileName is the config file looked up inside the data directory.
const DefaultFileName = "config.yaml"

// Config holds all ivault settings.
type Config struct {
	// DataDir is the directory holding the settings database, encrypted
	// files, and audit log.
	// Env: IVAULT_DATA_DIR
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// KeyringService is the OS keyring service name scoping vault entries.
	// Env: IVAULT_KEYRING_SERVICE
	KeyringService string `yaml:"keyring_service" env:"KEYRING_SERVICE"`

	// GracePeriod is how long the session survives backgrounding before
	// relocking on resume (e.g. "5s").
	// Env: IVAULT_GRACE_PERIOD
	GracePeriod time.Duration `yaml:"grace_period" env:"GRACE_PERIOD"`

	// LogLevel sets zerolog verbosity (debug, info, warn, error).
	// Env: IVAULT_LOG_LEVEL
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// AuditEnabled turns the tamper-evident audit log on or off.
	// Env: IVAULT_AUDIT_ENABLED
	AuditEnabled bool `yaml:"audit_enabled" env:"AUDIT_ENABLED"`

	// PolicyPath points at the MCP exposure policy file. Empty means
	// DataDir/policy.yaml.
	// Env: IVAULT_POLICY_PATH
	PolicyPath string `yaml:"policy_path" env:"POLICY_PATH"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DataDir:      filepath.Join(home, DefaultDirName),
		GracePeriod:  5 * time.Second,
		LogLevel:     "info",
		AuditEnabled: true,
	}
}

// Load builds the effective configuration. A non-empty path names the
// YAML file explicitly and must exist; with an empty path the default
// location is tried and silently skipped when absent. Environment
// variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, DefaultFileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is fine; defaults apply.
	default:
		return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "IVAULT_"}); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse environment: %w", err)
	}

	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("config: data_dir must not be empty")
	}
	if cfg.GracePeriod < 0 {
		return Config{}, fmt.Errorf("config: grace_period must not be negative")
	}
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = filepath.Join(cfg.DataDir, "policy.yaml")
	}
	return cfg, nil
}
