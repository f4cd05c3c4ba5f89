// Package config handles configuration loading for snipsync.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension)
// with environment variable expansion. Fields left out of the file keep
// the values from Default.
//
// # Configuration File
//
// Locations (in order):
//
//  1. The --config flag
//  2. Path from SNIPSYNC_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/snipsync/config.yaml (~/.config when unset)
//
// `snipsync init` writes a commented starter file.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	sync:
//	  token_secret: "${SNIPSYNC_TOKEN_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  latency: "500ms"
//	  background_interval: "5m"
//
// # Configuration Sections
//
//	server        http_addr, grpc_addr
//	database      path
//	origin        url of the application fronted by the cache proxy
//	cache         namespace prefix/version, rule inputs, app shell, offline page
//	sync          remote kind (http, postgres, simulated, none) and its settings
//	connectivity  probe_url, interval
//	logging       level, format (text or json)
package config
