// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, durations, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:9000"
  grpc_addr: "127.0.0.1:9001"

database:
  path: "./test.db"

origin:
  url: "http://localhost:3000"

cache:
  version: "v7"
  app_shell:
    - "/"
    - "/offline.html"
  refresh_timeout: "10s"

sync:
  remote: "http"
  url: "https://sync.example.com"
  device_id: "laptop"
  token_secret: "s3cret"
  background_interval: "1m"

connectivity:
  probe_url: "https://sync.example.com/healthz"
  interval: "15s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.GRPCAddr != "127.0.0.1:9001" {
		t.Errorf("Server.GRPCAddr = %q", cfg.Server.GRPCAddr)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Cache.Version != "v7" {
		t.Errorf("Cache.Version = %q", cfg.Cache.Version)
	}
	// Unset fields keep their defaults
	if cfg.Cache.Prefix != "snipsync" {
		t.Errorf("Cache.Prefix = %q, want default", cfg.Cache.Prefix)
	}
	if len(cfg.Cache.AppShell) != 2 || cfg.Cache.AppShell[1] != "/offline.html" {
		t.Errorf("Cache.AppShell = %v", cfg.Cache.AppShell)
	}
	if cfg.Cache.RefreshTimeout != 10*time.Second {
		t.Errorf("Cache.RefreshTimeout = %v", cfg.Cache.RefreshTimeout)
	}
	if cfg.Sync.Remote != RemoteHTTP || cfg.Sync.DeviceID != "laptop" {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Sync.BackgroundInterval != time.Minute {
		t.Errorf("Sync.BackgroundInterval = %v", cfg.Sync.BackgroundInterval)
	}
	if cfg.Connectivity.Interval != 15*time.Second {
		t.Errorf("Connectivity.Interval = %v", cfg.Connectivity.Interval)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
http_addr = "127.0.0.1:9000"

[database]
path = "./test.db"

[sync]
remote = "postgres"
postgres_dsn = "postgres://localhost/snips"
postgres_table = "team_snippets"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Remote != RemotePostgres {
		t.Errorf("Sync.Remote = %q", cfg.Sync.Remote)
	}
	if cfg.Sync.PostgresTable != "team_snippets" {
		t.Errorf("Sync.PostgresTable = %q", cfg.Sync.PostgresTable)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	// Defaults still apply
	if cfg.Sync.Latency != 500*time.Millisecond {
		t.Errorf("Sync.Latency = %v, want default", cfg.Sync.Latency)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SNIPSYNC_SECRET", "from-env")
	t.Setenv("TEST_SNIPSYNC_DB", "/tmp/from-env.db")

	path := writeConfig(t, "config.yaml", `
database:
  path: "${TEST_SNIPSYNC_DB}"
sync:
  remote: "http"
  url: "https://sync.example.com"
  device_id: "d"
  token_secret: "${TEST_SNIPSYNC_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.TokenSecret != "from-env" {
		t.Errorf("Sync.TokenSecret = %q", cfg.Sync.TokenSecret)
	}
	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_MissingEnvVarBecomesEmpty(t *testing.T) {
	os.Unsetenv("TEST_SNIPSYNC_UNSET")
	if got := expandEnvVars("a${TEST_SNIPSYNC_UNSET}b"); got != "ab" {
		t.Errorf("expandEnvVars() = %q, want %q", got, "ab")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad duration",
			content: "sync:\n  background_interval: \"soon\"\n",
			wantErr: "sync.background_interval",
		},
		{
			name:    "negative duration",
			content: "connectivity:\n  interval: \"-5s\"\n",
			wantErr: "must not be negative",
		},
		{
			name:    "unknown remote",
			content: "sync:\n  remote: \"carrier-pigeon\"\n",
			wantErr: "sync.remote",
		},
		{
			name:    "http remote without url",
			content: "sync:\n  remote: \"http\"\n",
			wantErr: "sync.url",
		},
		{
			name:    "postgres remote without dsn",
			content: "sync:\n  remote: \"postgres\"\n",
			wantErr: "sync.postgres_dsn",
		},
		{
			name:    "success rate out of range",
			content: "sync:\n  success_rate: 1.5\n",
			wantErr: "success_rate",
		},
		{
			name:    "relative origin",
			content: "origin:\n  url: \"/app\"\n",
			wantErr: "origin.url",
		},
		{
			name:    "prefix with dash",
			content: "origin:\n  url: \"http://localhost:3000\"\ncache:\n  prefix: \"snip-sync\"\n",
			wantErr: "cache.prefix",
		},
		{
			name:    "empty http addr",
			content: "server:\n  http_addr: \"\"\n",
			wantErr: "server.http_addr",
		},
		{
			name:    "bad log format",
			content: "logging:\n  format: \"xml\"\n",
			wantErr: "logging.format",
		},
		{
			name:    "malformed yaml",
			content: "server: [\n",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() error = nil for missing file")
	}
}

func TestPath_Priority(t *testing.T) {
	t.Setenv("SNIPSYNC_CONFIG", "/env/config.yaml")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	if got := Path("/flag/config.toml"); got != "/flag/config.toml" {
		t.Errorf("Path(flag) = %q", got)
	}
	if got := Path(""); got != "/env/config.yaml" {
		t.Errorf("Path(env) = %q", got)
	}

	t.Setenv("SNIPSYNC_CONFIG", "")
	if got := Path(""); got != filepath.Join("/xdg", "snipsync", "config.yaml") {
		t.Errorf("Path(xdg) = %q", got)
	}
}

func TestDataPath_XDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DataPath(); got != filepath.Join("/data", "snipsync") {
		t.Errorf("DataPath() = %q", got)
	}
}

func TestWriteStarter_LoadsWithDefaults(t *testing.T) {
	t.Setenv("SNIPSYNC_TOKEN_SECRET", "")
	t.Setenv("SNIPSYNC_POSTGRES_DSN", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	dbPath := filepath.Join(t.TempDir(), "snipsync.db")

	if err := WriteStarter(path, dbPath); err != nil {
		t.Fatalf("WriteStarter() error = %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(starter) error = %v", err)
	}
	if cfg.Database.Path != dbPath {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, dbPath)
	}
	if cfg.Sync.Remote != RemoteSimulated {
		t.Errorf("Sync.Remote = %q", cfg.Sync.Remote)
	}

	if err := WriteStarter(path, dbPath); err == nil {
		t.Error("WriteStarter() overwrote an existing file")
	}
}

func TestDefault_AppShellCoversEmbeddedShell(t *testing.T) {
	cfg := Default()
	want := map[string]bool{"/": true, "/index.html": true, "/offline.html": true, "/scripts/app.js": true}
	for _, p := range cfg.Cache.AppShell {
		delete(want, p)
		if strings.HasSuffix(p, ".md") {
			t.Errorf("app shell lists markdown source %q", p)
		}
	}
	if len(want) != 0 {
		t.Errorf("default app shell is missing %v", want)
	}

	// Default hands out a copy
	cfg.Cache.AppShell[0] = "/mutated"
	if DefaultAppShell[0] == "/mutated" {
		t.Error("Default() shares its app shell slice")
	}
}
