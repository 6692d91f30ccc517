// Package config provides unified configuration for the bruecke
// server.
//
// Configuration is loaded in layers:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (BRUECKE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the bruecke server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Exec    ExecConfig    `yaml:"exec"`
	Guard   GuardConfig   `yaml:"guard"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	MCP     MCPConfig     `yaml:"mcp"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	IdleTimeout     time.Duration `yaml:"idle_timeout"`     // default: 120s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`   // default: 10 MiB
}

// BackendConfig holds the native model backend connection settings.
type BackendConfig struct {
	BaseURL          string        `yaml:"base_url"`     // required
	APIKey           string        `yaml:"api_key"`      // optional
	APIKeyFile       string        `yaml:"api_key_file"` // _file variant for api_key
	Timeout          time.Duration `yaml:"timeout"`      // default: 120s
	DefaultMaxTokens int           `yaml:"default_max_tokens"`
}

// BridgeConfig holds the completion loop settings.
type BridgeConfig struct {
	MaxTurns int `yaml:"max_turns"` // default: 8
}

// ExecConfig holds tool execution settings.
type ExecConfig struct {
	Workers        int           `yaml:"workers"`          // default: 4
	FastTimeout    time.Duration `yaml:"fast_timeout"`     // default: 10s
	CommandTimeout time.Duration `yaml:"command_timeout"`  // default: 60s
	MaxOutputBytes int           `yaml:"max_output_bytes"` // default: 256 KiB
}

// GuardConfig holds execution security policy settings.
type GuardConfig struct {
	AllowedRoot    string   `yaml:"allowed_root"`
	DeniedCommands []string `yaml:"denied_commands"`
	MaxArgBytes    int      `yaml:"max_arg_bytes"`
	CallsPerMinute int      `yaml:"calls_per_minute"`
}

// SessionConfig holds per-session call tracking settings.
type SessionConfig struct {
	MaxSessions        int           `yaml:"max_sessions"`          // default: 1024
	MaxCallsPerSession int           `yaml:"max_calls_per_session"` // default: 256
	IdleTTL            time.Duration `yaml:"idle_ttl"`              // default: 30m
}

// StorageConfig holds transcript persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"` // "none", "apikey", or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes one static API key.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	TenantID    string `yaml:"tenant_id"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig holds JWT/OIDC validation settings.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	JWKSURL     string `yaml:"jwks_url"`
	UserClaim   string `yaml:"user_claim"`
	TenantClaim string `yaml:"tenant_claim"`
	ScopesClaim string `yaml:"scopes_claim"`
}

// RateLimitConfig holds per-tier request rate limits.
type RateLimitConfig struct {
	// DefaultRPM applies to tiers without an explicit entry. Zero
	// disables rate limiting for them.
	DefaultRPM int `yaml:"default_rpm"`
	// Tiers maps service tier names to requests per minute.
	Tiers map[string]int `yaml:"tiers"`
}

// MCPConfig holds MCP tool server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes one MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "streamable-http" or "sse"
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Backend: BackendConfig{
			Timeout: 120 * time.Second,
		},
		Bridge: BridgeConfig{
			MaxTurns: 8,
		},
		Exec: ExecConfig{
			Workers:        4,
			FastTimeout:    10 * time.Second,
			CommandTimeout: 60 * time.Second,
			MaxOutputBytes: 256 << 10,
		},
		Session: SessionConfig{
			MaxSessions:        1024,
			MaxCallsPerSession: 256,
			IdleTTL:            30 * time.Minute,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
	}
}
