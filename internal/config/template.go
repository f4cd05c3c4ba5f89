// ABOUTME: Starter configuration written by `snipsync init`
// ABOUTME: Commented YAML mirroring the defaults

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const starterTemplate = `# snipsync configuration

server:
  http_addr: "127.0.0.1:7420"
  # grpc_addr: "127.0.0.1:7421"   # gRPC health service

database:
  path: %q

# The application the daemon fronts. Leave empty to run without the cache proxy.
origin:
  url: ""

cache:
  prefix: "snipsync"
  version: "v2"
  api_prefix: "/api/"
  data_marker: "snippets"
  offline_page: "/offline.html"
  refresh_timeout: "30s"
  install_on_start: false

sync:
  remote: "simulated"             # http, postgres, simulated, none
  url: ""                         # http remote base URL
  device_id: ""
  token_secret: "${SNIPSYNC_TOKEN_SECRET}"
  postgres_dsn: "${SNIPSYNC_POSTGRES_DSN}"
  success_rate: 0.9
  latency: "500ms"
  background_interval: "5m"

connectivity:
  probe_url: ""
  interval: "30s"

logging:
  level: "info"
  format: "text"
`

// WriteStarter writes a starter config to path. It refuses to overwrite
// an existing file.
func WriteStarter(path, dbPath string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	content := fmt.Sprintf(starterTemplate, dbPath)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
