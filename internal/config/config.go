// Package config provides the daemon configuration: a TOML file with
// environment-specific overlays and environment variable overrides.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	// BaseConfigFile is the primary configuration file name.
	BaseConfigFile = "pulse.toml"

	// OverlayConfigPattern is the file name pattern for environment-specific
	// overlays, keyed by EnvServiceEnv.
	OverlayConfigPattern = "pulse.%s.toml"

	// EnvServiceEnv selects the configuration overlay.
	EnvServiceEnv = "PULSE_ENV"
)

// Config is the root daemon configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Session SessionConfig `toml:"session"`
	Profile ProfileConfig `toml:"profile"`
	Oracle  OracleConfig  `toml:"oracle"`
	Auth    AuthConfig    `toml:"auth"`
	Agent   AgentConfig   `toml:"agent"`
	Planner PlannerConfig `toml:"planner"`
}

// Load reads the base configuration file and applies any environment
// overlay. A missing base file yields a default-only configuration.
func Load() (*Config, error) {
	return LoadFrom(BaseConfigFile)
}

// LoadFrom reads the named configuration file and applies any environment
// overlay next to it.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(); overlay != "" {
		over, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(over)
	}
	return cfg, nil
}

// Finalize applies defaults, environment overrides, and validation across
// every section.
func (c *Config) Finalize() error {
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Session.Finalize(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Profile.Finalize(); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if err := c.Oracle.Finalize(); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if err := c.Auth.Finalize(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Agent.Finalize(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if err := c.Planner.Finalize(); err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	return nil
}

// Merge applies non-zero overlay values section by section.
func (c *Config) Merge(overlay *Config) {
	c.Server.Merge(&overlay.Server)
	c.Session.Merge(&overlay.Session)
	c.Profile.Merge(&overlay.Profile)
	c.Oracle.Merge(&overlay.Oracle)
	c.Auth.Merge(&overlay.Auth)
	c.Agent.Merge(&overlay.Agent)
	c.Planner.Merge(&overlay.Planner)
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvServiceEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func envOverride(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
