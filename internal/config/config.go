package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// SyncTimeout bounds the state-replay run for a joining client.
	SyncTimeout time.Duration `mapstructure:"sync_timeout" yaml:"sync_timeout"`
	// ReplyTimeout is the default deadline for pending replies when a
	// queued message does not carry its own.
	ReplyTimeout time.Duration `mapstructure:"reply_timeout" yaml:"reply_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "simsync.db",
		JWTSecret:         "dev-secret-change-me",
		JWTIssuer:         "simsync",
		JWTAudience:       "simsync-clients",
		LogLevel:          "info",
		SyncTimeout:       30 * time.Second,
		ReplyTimeout:      10 * time.Second,
	}
}
