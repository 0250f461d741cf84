// Package config handles configuration loading for codex-gateway.
//
// # Overview
//
// Configuration comes from three layers, lowest to highest precedence:
// built-in defaults, an optional YAML file, and GATEWAY_* environment
// variables. The environment layer is complete on its own, so a bare
// `codex-gateway serve` with a few env vars needs no file at all.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from GATEWAY_CONFIG environment variable
//  2. ./codex-gateway.yaml (current directory)
//  3. ~/.config/codex-gateway/config.yaml
//
// # Environment Variable Expansion
//
// File values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${GATEWAY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Environment Overrides
//
// Each override replaces the corresponding file value when set:
//
//	GATEWAY_PORT                listening port (default 8091)
//	GATEWAY_HOST                bind address (default 0.0.0.0)
//	GATEWAY_CODEX_BIN           codex binary name or path
//	GATEWAY_DEFAULT_MODEL       model passed as -m when requests omit one
//	GATEWAY_DEFAULT_TIMEOUT_MS  per-run deadline in milliseconds
//	GATEWAY_CODEX_FLAGS         extra argv, space-delimited
//	GATEWAY_DB_PATH             run-history SQLite path (empty = disabled)
//	GATEWAY_JWT_SECRET          bearer-auth secret (empty = auth disabled)
//	GATEWAY_LOG_LEVEL           debug, info, warn, error
//	GATEWAY_LOG_FORMAT          text, json
//
// # Configuration Sections
//
// Server and subprocess settings:
//
//	server:
//	  host: "0.0.0.0"
//	  port: 8091
//	codex:
//	  binary: "codex"
//	  default_model: "gpt-5.1-codex"
//	  default_timeout: "5m"
//	  extra_flags: ["--sandbox", "workspace-write"]
//
// Optional subsystems:
//
//	database:
//	  path: "/var/lib/codex-gateway/history.db"
//	auth:
//	  jwt_secret: "${GATEWAY_JWT_SECRET}"
//	tailscale:
//	  enabled: false
//	  hostname: "codex-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
// # Validation
//
// Load() validates port range, binary presence, timeout positivity, JWT
// secret minimum length (32 bytes), and log level/format membership.
package config
