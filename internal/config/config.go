package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.veildb/veildb.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version    int          `yaml:"version"`
	Server     ServerConfig `yaml:"server,omitempty"`
	Store      StoreConfig  `yaml:"store,omitempty"`
	Cohorts    CohortConfig `yaml:"cohorts,omitempty"`
	Logging    LogConfig    `yaml:"logging,omitempty"`
	Production bool         `yaml:"production,omitempty"`
}

// ServerConfig defines the HTTP API server settings.
type ServerConfig struct {
	Port int `yaml:"port,omitempty"` // default 8360
}

// StoreConfig defines where connection configurations are persisted.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // default ~/.veildb/state.yaml
}

// CohortConfig defines the MongoDB store holding cohort membership.
type CohortConfig struct {
	ConnectionString string `yaml:"connection_string,omitempty"`
	Database         string `yaml:"database,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.veildb/logs/
}

// ConnectionConfig describes one configured data source. Credentials are
// immutable after creation; only the activation flag is toggled afterwards.
type ConnectionConfig struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"` // postgresql, mysql, sqlite3, oracle
	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
	Path     string `yaml:"path,omitempty" json:"path,omitempty"` // sqlite3 file path
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	SSL      bool   `yaml:"ssl,omitempty" json:"ssl,omitempty"`
	Active   bool   `yaml:"active" json:"active"`
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Default returns a config with all defaults applied.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8360
	}
	if c.Store.Path == "" {
		c.Store.Path = ExpandHome("~/.veildb/state.yaml")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.veildb/logs/")
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Cohorts.ConnectionString, err = ResolveValue(c.Cohorts.ConnectionString)
	if err != nil {
		return fmt.Errorf("cohort connection string: %w", err)
	}
	return nil
}

// secretTimeout bounds one remote secret lookup at load time.
const secretTimeout = 10 * time.Second

// ResolveValue resolves secret references in a string value. Connection
// passwords stored in the state file go through this as well.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		ctx, cancel := context.WithTimeout(context.Background(), secretTimeout)
		defer cancel()
		return resolveVaultSecret(ctx, ref)
	case "AWS_SM":
		ctx, cancel := context.WithTimeout(context.Background(), secretTimeout)
		defer cancel()
		return resolveAWSSecret(ctx, ref)
	default:
		return "", fmt.Errorf("unknown secret provider %q", provider)
	}
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
