package fundsavy

import (
	"github.com/fundsavy/fundsavy/internal/config"
)

// Config is the application configuration. See the fields of each section
// for the file keys.
type Config = config.Config

// Configuration sections.
type (
	ServerConfig    = config.ServerConfig
	GroupsConfig    = config.GroupsConfig
	AuthConfig      = config.AuthConfig
	GoogleConfig    = config.GoogleConfig
	S3Config        = config.S3Config
	TelemetryConfig = config.TelemetryConfig
	LogConfig       = config.LogConfig
	Duration        = config.Duration
)

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return config.New()
}

// LoadConfig loads fundsavy.json (or .yaml, .yml, .toml) from dir, falling
// back to defaults when there is none, and applies environment overrides.
func LoadConfig(dir string) (*Config, error) {
	cfg, err := config.LoadOrDefault(dir)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(nil)
	return cfg, nil
}

// LoadConfigFile loads the configuration at path and applies environment
// overrides.
func LoadConfigFile(path string) (*Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(nil)
	return cfg, nil
}
