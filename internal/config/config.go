package config

import "time"

// Config holds client configuration values.
type Config struct {
	// APIBaseURL is the base URL of the marketplace REST API.
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`
	// ChatURL is the WebSocket endpoint for the chat transport.
	ChatURL string `mapstructure:"chat_url" yaml:"chat_url"`
	// RefreshPath is the token refresh endpoint, exempt from the 401 retry path.
	RefreshPath string `mapstructure:"refresh_path" yaml:"refresh_path"`

	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	// SessionNoticeDelay is how long the session-expired notice stays visible
	// before the redirect to the login entry point fires.
	SessionNoticeDelay time.Duration `mapstructure:"session_notice_delay" yaml:"session_notice_delay"`

	// TokenDBPath is the SQLite file backing the durable credential vault.
	TokenDBPath string `mapstructure:"token_db_path" yaml:"token_db_path"`
	// VaultKeyPath is the file holding the vault encryption key.
	VaultKeyPath string `mapstructure:"vault_key_path" yaml:"vault_key_path"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:         "http://localhost:8080",
		ChatURL:            "ws://localhost:8080/ws/chat",
		RefreshPath:        "/api/auth/refresh",
		RequestTimeout:     15 * time.Second,
		HeartbeatInterval:  10 * time.Second,
		ReconnectDelay:     3 * time.Second,
		SessionNoticeDelay: 2 * time.Second,
		TokenDBPath:        "dugout.db",
		VaultKeyPath:       "dugout.key",
		LogLevel:           "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.ChatURL != "" {
		c.ChatURL = other.ChatURL
	}
	if other.RefreshPath != "" {
		c.RefreshPath = other.RefreshPath
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.HeartbeatInterval != 0 {
		c.HeartbeatInterval = other.HeartbeatInterval
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.SessionNoticeDelay != 0 {
		c.SessionNoticeDelay = other.SessionNoticeDelay
	}
	if other.TokenDBPath != "" {
		c.TokenDBPath = other.TokenDBPath
	}
	if other.VaultKeyPath != "" {
		c.VaultKeyPath = other.VaultKeyPath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
