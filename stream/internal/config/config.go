package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains runtime configuration for the stream service.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	NATS    NATSConfig    `yaml:"nats" mapstructure:"nats"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	Stream  StreamConfig  `yaml:"stream" mapstructure:"stream"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig captures HTTP server settings.
type ServerConfig struct {
	Port                int `yaml:"port" mapstructure:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
	ShutdownGraceSecond int `yaml:"shutdown_grace_seconds" mapstructure:"shutdown_grace_seconds"`
}

// ReadTimeout returns the configured read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// ShutdownGrace returns the graceful shutdown budget as a duration.
func (s ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownGraceSecond) * time.Second
}

// NATSConfig captures NATS message broker connection settings.
type NATSConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	MaxReconnects int    `yaml:"max_reconnects" mapstructure:"max_reconnects"`
	ReconnectWait int    `yaml:"reconnect_wait_seconds" mapstructure:"reconnect_wait_seconds"`
}

// ReconnectWaitDuration returns the reconnect wait as a time.Duration.
func (n NATSConfig) ReconnectWaitDuration() time.Duration {
	return time.Duration(n.ReconnectWait) * time.Second
}

// RedisConfig captures the cache connection settings.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// StreamConfig tunes the streaming connection manager.
type StreamConfig struct {
	HeartbeatIntervalSeconds int      `yaml:"heartbeat_interval_seconds" mapstructure:"heartbeat_interval_seconds"`
	QueueSize                int      `yaml:"queue_size" mapstructure:"queue_size"`
	AllowedOrigins           []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// HeartbeatInterval returns the heartbeat interval as a duration.
func (s StreamConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalSeconds) * time.Second
}

// LoggingConfig captures logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// Load reads configuration from the provided path and environment variables.
// Environment variables use the PULSE_STREAM_ prefix with underscores, e.g.
// PULSE_STREAM_NATS_URL overrides nats.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 120)
	v.SetDefault("server.shutdown_grace_seconds", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait_seconds", 2)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("stream.heartbeat_interval_seconds", 30)
	v.SetDefault("stream.queue_size", 64)
	v.SetDefault("stream.allowed_origins", []string{"*"})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("PULSE_STREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
