package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file, expands ${ENV_VAR} references, and
// applies defaults for any section left unset.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes with env expansion and defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides fills credentials from the environment when the file
// leaves them blank. Matches the variable names the original deployment used.
func applyEnvOverrides(cfg *Config) {
	setIfEmpty(&cfg.Auth.JWTSecret, "VOXGATE_JWT_SECRET")
	setIfEmpty(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&cfg.Providers.Deepgram.APIKey, "DEEPGRAM_API_KEY")
	setIfEmpty(&cfg.Providers.SignalWire.ProjectID, "SIGNALWIRE_PROJECT_ID")
	setIfEmpty(&cfg.Providers.SignalWire.Token, "SIGNALWIRE_TOKEN")
	setIfEmpty(&cfg.Providers.SignalWire.Space, "SIGNALWIRE_SPACE")
	setIfEmpty(&cfg.Providers.SignalWire.PhoneNumber, "SIGNALWIRE_PHONE_NUMBER")
}

func setIfEmpty(dst *string, env string) {
	if strings.TrimSpace(*dst) == "" {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}
