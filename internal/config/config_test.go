package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  host: 0.0.0.0
  http_port: 9090
logging:
  level: debug
verification:
  check_delay: 50ms
  session_ttl: 30m
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("http_port = %d, want 9090", cfg.Server.HTTPPort)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Verification.CheckDelay != 50*time.Millisecond {
		t.Errorf("check_delay = %v, want 50ms", cfg.Verification.CheckDelay)
	}
	if cfg.Verification.SessionTTL != 30*time.Minute {
		t.Errorf("session_ttl = %v, want 30m", cfg.Verification.SessionTTL)
	}
	// Untouched sections keep defaults.
	if cfg.Relay.Path != "/ws" {
		t.Errorf("relay path = %q, want /ws", cfg.Relay.Path)
	}
}

func TestParseExpandsEnv(t *testing.T) {
	os.Setenv("VOXGATE_TEST_SECRET", "s3cret")
	defer os.Unsetenv("VOXGATE_TEST_SECRET")

	cfg, err := Parse([]byte("auth:\n  jwt_secret: ${VOXGATE_TEST_SECRET}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("jwt_secret = %q, want s3cret", cfg.Auth.JWTSecret)
	}
}

func TestParseEnvFallback(t *testing.T) {
	os.Setenv("SIGNALWIRE_PROJECT_ID", "proj-1")
	defer os.Unsetenv("SIGNALWIRE_PROJECT_ID")

	cfg, err := Parse([]byte("server:\n  http_port: 8081\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Providers.SignalWire.ProjectID != "proj-1" {
		t.Errorf("project id = %q, want proj-1", cfg.Providers.SignalWire.ProjectID)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }},
		{"relative relay path", func(c *Config) { c.Relay.Path = "ws" }},
		{"negative check delay", func(c *Config) { c.Verification.CheckDelay = -time.Second }},
		{"zero session ttl", func(c *Config) { c.Verification.SessionTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSignalWireEnabled(t *testing.T) {
	cfg := Default()
	if cfg.SignalWireEnabled() {
		t.Error("unconfigured signalwire should be disabled")
	}
	cfg.Providers.SignalWire = SignalWireConfig{ProjectID: "p", Token: "t", Space: "sp"}
	if !cfg.SignalWireEnabled() {
		t.Error("configured signalwire should be enabled")
	}
}
