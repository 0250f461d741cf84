// ABOUTME: Configuration loading for codex-gateway from YAML and environment.
// ABOUTME: Env vars always override file values so the gateway runs file-free.

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before any file or environment value.
const (
	DefaultPort      = 8091
	DefaultHost      = "0.0.0.0"
	DefaultBinary    = "codex"
	DefaultTimeout   = 5 * time.Minute
	minJWTSecretLen  = 32
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Codex     CodexConfig     `yaml:"codex"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CodexConfig controls how the codex CLI subprocess is invoked.
type CodexConfig struct {
	Binary            string        `yaml:"binary"`
	DefaultModel      string        `yaml:"default_model"`
	ExtraFlags        []string      `yaml:"extra_flags"`
	DefaultTimeoutRaw string        `yaml:"default_timeout"`
	DefaultTimeout    time.Duration `yaml:"-"`
}

// DatabaseConfig locates the optional run-history store. An empty path
// disables history entirely.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds the optional bearer-token settings. An empty secret
// disables auth entirely.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// TailscaleConfig controls the optional tsnet listener.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`
	Funnel    bool   `yaml:"funnel"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envVarPattern matches ${VAR} references in config files.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load finds and loads the configuration. Search order: GATEWAY_CONFIG,
// ./codex-gateway.yaml, ~/.config/codex-gateway/config.yaml. With no file
// present the defaults plus environment overrides apply, which is the
// complete env-only startup contract.
func Load() (*Config, error) {
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		return LoadFromPath(path)
	}
	if _, err := os.Stat("codex-gateway.yaml"); err == nil {
		return LoadFromPath("codex-gateway.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "codex-gateway", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return LoadFromPath(path)
		}
	}
	return finish(defaults())
}

// LoadFromPath loads the configuration from an explicit YAML file.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Codex: CodexConfig{
			Binary:         DefaultBinary,
			DefaultTimeout: DefaultTimeout,
		},
		Tailscale: TailscaleConfig{
			Hostname: "codex-gateway",
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(data string) string {
	return envVarPattern.ReplaceAllStringFunc(data, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// applyEnvOverrides layers GATEWAY_* environment variables over whatever
// the file provided. Environment always wins.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GATEWAY_PORT: %q is not a number", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("GATEWAY_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("GATEWAY_CODEX_BIN"); v != "" {
		c.Codex.Binary = v
	}
	if v := os.Getenv("GATEWAY_DEFAULT_MODEL"); v != "" {
		c.Codex.DefaultModel = v
	}
	if v := os.Getenv("GATEWAY_CODEX_FLAGS"); v != "" {
		c.Codex.ExtraFlags = strings.Fields(v)
	}
	if v := os.Getenv("GATEWAY_DEFAULT_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("GATEWAY_DEFAULT_TIMEOUT_MS: %q is not a positive number", v)
		}
		c.Codex.DefaultTimeout = time.Duration(ms) * time.Millisecond
		c.Codex.DefaultTimeoutRaw = ""
	}
	if v := os.Getenv("GATEWAY_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("GATEWAY_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GATEWAY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	return nil
}

// parseDurations converts raw duration strings into time.Duration fields.
func (c *Config) parseDurations() error {
	if c.Codex.DefaultTimeoutRaw != "" {
		d, err := time.ParseDuration(c.Codex.DefaultTimeoutRaw)
		if err != nil {
			return fmt.Errorf("invalid codex.default_timeout: %w", err)
		}
		c.Codex.DefaultTimeout = d
	}
	return nil
}

// Validate checks the assembled configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Codex.Binary) == "" {
		return fmt.Errorf("codex.binary must not be empty")
	}
	if c.Codex.DefaultTimeout <= 0 {
		return fmt.Errorf("codex.default_timeout must be positive")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLen)
	}
	if c.Tailscale.Enabled && strings.TrimSpace(c.Tailscale.Hostname) == "" {
		return fmt.Errorf("tailscale.hostname required when tailscale is enabled")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q not one of text, json", c.Logging.Format)
	}
	return nil
}
