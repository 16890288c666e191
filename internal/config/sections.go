package config

import (
	"fmt"
	"time"

	"pulse/internal/configstore"
)

// Environment variable override keys.
const (
	EnvServerAddr      = "PULSE_SERVER_ADDR"
	EnvSessionBackend  = "PULSE_SESSION_BACKEND"
	EnvSessionDSN      = "PULSE_SESSION_DSN"
	EnvRedisURL        = "PULSE_REDIS_URL"
	EnvProfileBackend  = "PULSE_PROFILE_BACKEND"
	EnvProfilePath     = "PULSE_PROFILE_PATH"
	EnvProfileDSN      = "PULSE_PROFILE_DSN"
	EnvOracleAPIKey    = "PULSE_ORACLE_API_KEY"
	EnvOracleBaseURL   = "PULSE_ORACLE_BASE_URL"
	EnvAuthAPIKey      = "PULSE_API_KEY"
	EnvAuthJWTSecret   = "PULSE_JWT_SECRET"
	EnvTelegramToken   = "PULSE_TELEGRAM_BOT_TOKEN"
	EnvDiscordToken    = "PULSE_DISCORD_BOT_TOKEN"
	EnvTwitterToken    = "PULSE_TWITTER_BEARER_TOKEN"
	EnvFarcasterAPIKey = "PULSE_FARCASTER_API_KEY"
	EnvFarcasterSigner = "PULSE_FARCASTER_SIGNER_UUID"
)

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	CORSOrigins     []string `toml:"cors_origins"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
}

func (c *ServerConfig) Finalize() error {
	if c.Addr == "" {
		c.Addr = ":8310"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "15s"
	}
	envOverride(EnvServerAddr, &c.Addr)
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Addr != "" {
		c.Addr = overlay.Addr
	}
	if len(overlay.CORSOrigins) > 0 {
		c.CORSOrigins = overlay.CORSOrigins
	}
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout.
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// SessionConfig selects the session store backend and, for cross-process
// deployments, the Redis lock manager.
type SessionConfig struct {
	// Backend is one of memory, sqlite, postgres.
	Backend string `toml:"backend"`

	// Path is the SQLite database file for the sqlite backend.
	Path string `toml:"path"`

	// DSN is the connection string for the postgres backend.
	DSN string `toml:"dsn"`

	// RedisURL switches session locking to the Redis-backed locker when
	// set. Empty keeps the in-process keyed locks.
	RedisURL string `toml:"redis_url"`
}

func (c *SessionConfig) Finalize() error {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	envOverride(EnvSessionBackend, &c.Backend)
	envOverride(EnvSessionDSN, &c.DSN)
	envOverride(EnvRedisURL, &c.RedisURL)

	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.Path == "" {
			c.Path = "pulse.db"
		}
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("postgres backend requires dsn")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Backend)
	}
	return nil
}

func (c *SessionConfig) Merge(overlay *SessionConfig) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
	if overlay.DSN != "" {
		c.DSN = overlay.DSN
	}
	if overlay.RedisURL != "" {
		c.RedisURL = overlay.RedisURL
	}
}

// ProfileConfig selects the agent profile store backend.
type ProfileConfig struct {
	// Backend is one of file, mysql.
	Backend string `toml:"backend"`

	// Path is the YAML profile for the file backend.
	Path string `toml:"path"`

	// DSN is the connection string for the mysql backend.
	DSN string `toml:"dsn"`

	// ExportPath, when set, receives the deployable agent.json snapshot on
	// every profile update.
	ExportPath string `toml:"export_path"`
}

func (c *ProfileConfig) Finalize() error {
	if c.Backend == "" {
		c.Backend = "file"
	}
	envOverride(EnvProfileBackend, &c.Backend)
	envOverride(EnvProfilePath, &c.Path)
	envOverride(EnvProfileDSN, &c.DSN)

	switch c.Backend {
	case "file":
		if c.Path == "" {
			c.Path = "agent.yaml"
		}
	case "mysql":
		if c.DSN == "" {
			return fmt.Errorf("mysql backend requires dsn")
		}
	default:
		return fmt.Errorf("unknown profile backend %q", c.Backend)
	}
	return nil
}

func (c *ProfileConfig) Merge(overlay *ProfileConfig) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
	if overlay.DSN != "" {
		c.DSN = overlay.DSN
	}
	if overlay.ExportPath != "" {
		c.ExportPath = overlay.ExportPath
	}
}

// OracleConfig describes the chat-completions planner backend.
type OracleConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	ModelID string `toml:"model_id"`
	Timeout string `toml:"timeout"`
	Retries int    `toml:"retries"`
}

func (c *OracleConfig) Finalize() error {
	if c.ModelID == "" {
		c.ModelID = configstore.DefaultModelID
	}
	if !configstore.SupportedModel(c.ModelID) {
		return fmt.Errorf("unknown model id %q", c.ModelID)
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	envOverride(EnvOracleAPIKey, &c.APIKey)
	envOverride(EnvOracleBaseURL, &c.BaseURL)
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

func (c *OracleConfig) Merge(overlay *OracleConfig) {
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.ModelID != "" {
		c.ModelID = overlay.ModelID
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.Retries != 0 {
		c.Retries = overlay.Retries
	}
}

// TimeoutDuration returns the parsed oracle timeout.
func (c *OracleConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// AuthConfig describes access-token issuance: callers exchange the static
// API key for a short-lived bearer token signed with the JWT secret.
type AuthConfig struct {
	APIKey    string `toml:"api_key"`
	JWTSecret string `toml:"jwt_secret"`
	TokenTTL  string `toml:"token_ttl"`
}

func (c *AuthConfig) Finalize() error {
	if c.TokenTTL == "" {
		c.TokenTTL = "24h"
	}
	envOverride(EnvAuthAPIKey, &c.APIKey)
	envOverride(EnvAuthJWTSecret, &c.JWTSecret)
	if _, err := time.ParseDuration(c.TokenTTL); err != nil {
		return fmt.Errorf("invalid token_ttl: %w", err)
	}
	return nil
}

func (c *AuthConfig) Merge(overlay *AuthConfig) {
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.JWTSecret != "" {
		c.JWTSecret = overlay.JWTSecret
	}
	if overlay.TokenTTL != "" {
		c.TokenTTL = overlay.TokenTTL
	}
}

// TokenTTLDuration returns the parsed token lifetime.
func (c *AuthConfig) TokenTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TokenTTL)
	return d
}

// AgentConfig carries the platform credentials for the built-in catalogs
// and the default reaction platform.
type AgentConfig struct {
	DefaultPlatform     string `toml:"default_platform"`
	TelegramBotToken    string `toml:"telegram_bot_token"`
	DiscordBotToken     string `toml:"discord_bot_token"`
	TwitterBearerToken  string `toml:"twitter_bearer_token"`
	FarcasterAPIKey     string `toml:"farcaster_api_key"`
	FarcasterSignerUUID string `toml:"farcaster_signer_uuid"`
}

func (c *AgentConfig) Finalize() error {
	if c.DefaultPlatform == "" {
		c.DefaultPlatform = "twitter"
	}
	envOverride(EnvTelegramToken, &c.TelegramBotToken)
	envOverride(EnvDiscordToken, &c.DiscordBotToken)
	envOverride(EnvTwitterToken, &c.TwitterBearerToken)
	envOverride(EnvFarcasterAPIKey, &c.FarcasterAPIKey)
	envOverride(EnvFarcasterSigner, &c.FarcasterSignerUUID)
	return nil
}

func (c *AgentConfig) Merge(overlay *AgentConfig) {
	if overlay.DefaultPlatform != "" {
		c.DefaultPlatform = overlay.DefaultPlatform
	}
	if overlay.TelegramBotToken != "" {
		c.TelegramBotToken = overlay.TelegramBotToken
	}
	if overlay.DiscordBotToken != "" {
		c.DiscordBotToken = overlay.DiscordBotToken
	}
	if overlay.TwitterBearerToken != "" {
		c.TwitterBearerToken = overlay.TwitterBearerToken
	}
	if overlay.FarcasterAPIKey != "" {
		c.FarcasterAPIKey = overlay.FarcasterAPIKey
	}
	if overlay.FarcasterSignerUUID != "" {
		c.FarcasterSignerUUID = overlay.FarcasterSignerUUID
	}
}

// PlannerConfig bounds the reaction loop.
type PlannerConfig struct {
	MaxSteps           int    `toml:"max_steps"`
	OracleFailureLimit int    `toml:"oracle_failure_limit"`
	ExecTimeout        string `toml:"exec_timeout"`
	HistoryWindow      int    `toml:"history_window"`
}

func (c *PlannerConfig) Finalize() error {
	if c.ExecTimeout == "" {
		c.ExecTimeout = "30s"
	}
	if _, err := time.ParseDuration(c.ExecTimeout); err != nil {
		return fmt.Errorf("invalid exec_timeout: %w", err)
	}
	return nil
}

func (c *PlannerConfig) Merge(overlay *PlannerConfig) {
	if overlay.MaxSteps != 0 {
		c.MaxSteps = overlay.MaxSteps
	}
	if overlay.OracleFailureLimit != 0 {
		c.OracleFailureLimit = overlay.OracleFailureLimit
	}
	if overlay.ExecTimeout != "" {
		c.ExecTimeout = overlay.ExecTimeout
	}
	if overlay.HistoryWindow != 0 {
		c.HistoryWindow = overlay.HistoryWindow
	}
}

// ExecTimeoutDuration returns the parsed execution timeout.
func (c *PlannerConfig) ExecTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ExecTimeout)
	return d
}
