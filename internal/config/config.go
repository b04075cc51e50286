package config

import "time"

// Config holds client configuration values.
type Config struct {
	ServerURL       string          `mapstructure:"server_url" yaml:"server_url"`
	WSURL           string          `mapstructure:"ws_url" yaml:"ws_url"`
	Username        string          `mapstructure:"username" yaml:"username"`
	Token           string          `mapstructure:"token" yaml:"token"`
	LogLevel        string          `mapstructure:"log_level" yaml:"log_level"`
	LogFile         string          `mapstructure:"log_file" yaml:"log_file"`
	HTTPTimeout     time.Duration   `mapstructure:"http_timeout" yaml:"http_timeout"`
	MaxMessageBytes int64           `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendQueue       int             `mapstructure:"send_queue" yaml:"send_queue"`
	SyncInterval    time.Duration   `mapstructure:"sync_interval" yaml:"sync_interval"`
	IdentityPath    string          `mapstructure:"identity_path" yaml:"identity_path"`
	Reconnect       ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
}

// ReconnectConfig controls the per-topic reconnect backoff.
type ReconnectConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Factor       float64       `mapstructure:"factor" yaml:"factor"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:       "http://localhost:8000",
		Token:           "token",
		LogLevel:        "info",
		LogFile:         "wirechat-client.log",
		HTTPTimeout:     10 * time.Second,
		MaxMessageBytes: 1 << 20,
		SendQueue:       16,
		SyncInterval:    30 * time.Second,
		IdentityPath:    "wirechat-identity.db",
		Reconnect: ReconnectConfig{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Factor:       2,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.WSURL != "" {
		c.WSURL = other.WSURL
	}
	if other.Username != "" {
		c.Username = other.Username
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
	if other.HTTPTimeout != 0 {
		c.HTTPTimeout = other.HTTPTimeout
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendQueue != 0 {
		c.SendQueue = other.SendQueue
	}
	if other.SyncInterval != 0 {
		c.SyncInterval = other.SyncInterval
	}
	if other.IdentityPath != "" {
		c.IdentityPath = other.IdentityPath
	}
	if other.Reconnect.InitialDelay != 0 {
		c.Reconnect.InitialDelay = other.Reconnect.InitialDelay
	}
	if other.Reconnect.MaxDelay != 0 {
		c.Reconnect.MaxDelay = other.Reconnect.MaxDelay
	}
	if other.Reconnect.Factor != 0 {
		c.Reconnect.Factor = other.Reconnect.Factor
	}
}
