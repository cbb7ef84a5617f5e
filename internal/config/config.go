// Package config defines the voxgate configuration schema and loader.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the gateway.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Auth         AuthConfig         `yaml:"auth"`
	Database     DatabaseConfig     `yaml:"database"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Relay        RelayConfig        `yaml:"relay"`
	Verification VerificationConfig `yaml:"verification"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host      string `yaml:"host"`
	HTTPPort  int    `yaml:"http_port"`
	PublicURL string `yaml:"public_url"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig controls JWT issuance.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Expiry    time.Duration `yaml:"expiry"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file. ":memory:" is accepted.
	Path string `yaml:"path"`
}

// ProvidersConfig groups external API credentials.
type ProvidersConfig struct {
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Deepgram   DeepgramConfig   `yaml:"deepgram"`
	SignalWire SignalWireConfig `yaml:"signalwire"`
}

// OpenAIConfig holds OpenAI chat/TTS credentials.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DeepgramConfig holds Deepgram STT credentials.
type DeepgramConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// SignalWireConfig holds SignalWire LaML credentials.
type SignalWireConfig struct {
	ProjectID   string `yaml:"project_id"`
	Token       string `yaml:"token"`
	Space       string `yaml:"space"`
	PhoneNumber string `yaml:"phone_number"`
}

// RelayConfig controls the websocket relay endpoint.
type RelayConfig struct {
	Path              string        `yaml:"path"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// VerificationConfig controls the verification session engine.
type VerificationConfig struct {
	// CheckDelay is the pause before each verification check.
	CheckDelay time.Duration `yaml:"check_delay"`
	// SessionTTL is the age after which ClearOldSessions drops a session.
	SessionTTL time.Duration `yaml:"session_ttl"`
	// SweepInterval is the cron cadence for the stale-session sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default returns a configuration with development defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			HTTPPort: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Expiry: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "voxgate.db",
		},
		Providers: ProvidersConfig{
			OpenAI:   OpenAIConfig{Model: "gpt-4o"},
			Deepgram: DeepgramConfig{Model: "nova-2"},
		},
		Relay: RelayConfig{
			Path:              "/ws",
			KeepaliveInterval: 20 * time.Second,
		},
		Verification: VerificationConfig{
			CheckDelay:    time.Second,
			SessionTTL:    time.Hour,
			SweepInterval: 10 * time.Minute,
		},
	}
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("config: invalid http_port %d", c.Server.HTTPPort)
	}
	switch c.Database.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("config: database path is required for sqlite")
	}
	if !strings.HasPrefix(c.Relay.Path, "/") {
		return fmt.Errorf("config: relay path must start with /")
	}
	if c.Verification.CheckDelay < 0 {
		return fmt.Errorf("config: verification check_delay must not be negative")
	}
	if c.Verification.SessionTTL <= 0 {
		return fmt.Errorf("config: verification session_ttl must be positive")
	}
	return nil
}

// SignalWireEnabled reports whether outbound telephony is configured.
func (c *Config) SignalWireEnabled() bool {
	sw := c.Providers.SignalWire
	return sw.ProjectID != "" && sw.Token != "" && sw.Space != ""
}
