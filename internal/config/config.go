// ABOUTME: Configuration loading and parsing for snipsync
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/snipsync/internal/assets"
)

// Remote kinds accepted in sync.remote
const (
	RemoteHTTP      = "http"
	RemotePostgres  = "postgres"
	RemoteSimulated = "simulated"
	RemoteNone      = "none"
)

// Config represents the complete snipsync configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Database     DatabaseConfig     `yaml:"database" toml:"database"`
	Origin       OriginConfig       `yaml:"origin" toml:"origin"`
	Cache        CacheConfig        `yaml:"cache" toml:"cache"`
	Sync         SyncConfig         `yaml:"sync" toml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity" toml:"connectivity"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
}

// ServerConfig holds listener addresses. An empty grpc_addr disables
// the gRPC health listener.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// OriginConfig points at the application the daemon fronts. Without a URL
// the cache proxy is disabled.
type OriginConfig struct {
	URL string `yaml:"url" toml:"url"`
}

// CacheConfig holds cache router configuration
type CacheConfig struct {
	Prefix      string   `yaml:"prefix" toml:"prefix"`
	Version     string   `yaml:"version" toml:"version"`
	APIPrefix   string   `yaml:"api_prefix" toml:"api_prefix"`
	DataMarker  string   `yaml:"data_marker" toml:"data_marker"`
	OfflinePage string   `yaml:"offline_page" toml:"offline_page"`
	AppShell    []string `yaml:"app_shell" toml:"app_shell"`
	// InstallOnStart pre-populates the app shell when the daemon starts.
	InstallOnStart bool `yaml:"install_on_start" toml:"install_on_start"`

	RefreshTimeout    time.Duration `yaml:"-" toml:"-"`
	RefreshTimeoutRaw string        `yaml:"refresh_timeout" toml:"refresh_timeout"`
}

// SyncConfig selects and configures the remote records are pushed to
type SyncConfig struct {
	Remote        string  `yaml:"remote" toml:"remote"`
	URL           string  `yaml:"url" toml:"url"`
	DeviceID      string  `yaml:"device_id" toml:"device_id"`
	TokenSecret   string  `yaml:"token_secret" toml:"token_secret"`
	PostgresDSN   string  `yaml:"postgres_dsn" toml:"postgres_dsn"`
	PostgresTable string  `yaml:"postgres_table" toml:"postgres_table"`
	SuccessRate   float64 `yaml:"success_rate" toml:"success_rate"`

	Latency            time.Duration `yaml:"-" toml:"-"`
	BackgroundInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	LatencyRaw            string `yaml:"latency" toml:"latency"`
	BackgroundIntervalRaw string `yaml:"background_interval" toml:"background_interval"`
}

// ConnectivityConfig holds the connectivity probe configuration. An empty
// probe_url disables probing.
type ConnectivityConfig struct {
	ProbeURL    string        `yaml:"probe_url" toml:"probe_url"`
	Interval    time.Duration `yaml:"-" toml:"-"`
	IntervalRaw string        `yaml:"interval" toml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultAppShell is the resource list pre-cached on install: every file
// of the embedded shell.
var DefaultAppShell = assets.AppShell()

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:7420"},
		Database: DatabaseConfig{Path: filepath.Join(DataPath(), "snipsync.db")},
		Cache: CacheConfig{
			Prefix:            "snipsync",
			Version:           "v2",
			APIPrefix:         "/api/",
			DataMarker:        "snippets",
			OfflinePage:       "/offline.html",
			AppShell:          append([]string(nil), DefaultAppShell...),
			RefreshTimeoutRaw: "30s",
		},
		Sync: SyncConfig{
			Remote:                RemoteSimulated,
			SuccessRate:           0.9,
			LatencyRaw:            "500ms",
			BackgroundIntervalRaw: "5m",
		},
		Connectivity: ConnectivityConfig{IntervalRaw: "30s"},
		Logging:      LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Values missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Path returns the config file to use.
// Priority: flag > SNIPSYNC_CONFIG env var > XDG_CONFIG_HOME/snipsync/config.yaml > ~/.config/snipsync/config.yaml
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if envPath := os.Getenv("SNIPSYNC_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "snipsync", "config.yaml")
}

// DataPath returns the snipsync data directory.
// Priority: XDG_DATA_HOME/snipsync > ~/.local/share/snipsync
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "snipsync")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Origin.URL != "" {
		u, err := url.Parse(c.Origin.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("origin.url must be an absolute URL, got %q", c.Origin.URL)
		}
		if c.Cache.Prefix == "" || c.Cache.Version == "" {
			return fmt.Errorf("cache.prefix and cache.version are required when origin.url is set")
		}
		if strings.Contains(c.Cache.Prefix, "-") {
			return fmt.Errorf("cache.prefix must not contain '-'")
		}
	}

	switch c.Sync.Remote {
	case RemoteHTTP:
		if c.Sync.URL == "" {
			return fmt.Errorf("sync.url is required for the http remote")
		}
		if c.Sync.TokenSecret != "" && c.Sync.DeviceID == "" {
			return fmt.Errorf("sync.device_id is required when sync.token_secret is set")
		}
	case RemotePostgres:
		if c.Sync.PostgresDSN == "" {
			return fmt.Errorf("sync.postgres_dsn is required for the postgres remote")
		}
	case RemoteSimulated:
		if c.Sync.SuccessRate < 0 || c.Sync.SuccessRate > 1 {
			return fmt.Errorf("sync.success_rate must be between 0 and 1")
		}
	case RemoteNone:
	default:
		return fmt.Errorf("sync.remote must be one of http, postgres, simulated, none; got %q", c.Sync.Remote)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"cache.refresh_timeout", cfg.Cache.RefreshTimeoutRaw, &cfg.Cache.RefreshTimeout},
		{"sync.latency", cfg.Sync.LatencyRaw, &cfg.Sync.Latency},
		{"sync.background_interval", cfg.Sync.BackgroundIntervalRaw, &cfg.Sync.BackgroundInterval},
		{"connectivity.interval", cfg.Connectivity.IntervalRaw, &cfg.Connectivity.Interval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}
