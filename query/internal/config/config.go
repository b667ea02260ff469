package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains runtime configuration for the query service.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	OpenSearch OpenSearchConfig `yaml:"opensearch" mapstructure:"opensearch"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig captures HTTP server settings.
type ServerConfig struct {
	Port                int `yaml:"port" mapstructure:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
}

// ReadTimeout returns the configured read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// RedisConfig captures the cache connection settings.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// OpenSearchConfig captures the search-index connection settings.
type OpenSearchConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
	Index    string `yaml:"index" mapstructure:"index"`
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
}

// DatabaseConfig captures the source-of-truth store settings.
type DatabaseConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	MigrationsDir string `yaml:"migrations_dir" mapstructure:"migrations_dir"`
}

// CacheConfig captures cache TTL tuning.
type CacheConfig struct {
	FacilityTTLSeconds int `yaml:"facility_ttl_seconds" mapstructure:"facility_ttl_seconds"`
	SearchTTLSeconds   int `yaml:"search_ttl_seconds" mapstructure:"search_ttl_seconds"`
	NegativeTTLSeconds int `yaml:"negative_ttl_seconds" mapstructure:"negative_ttl_seconds"`
}

// FacilityTTL returns the entity cache TTL as a duration.
func (c CacheConfig) FacilityTTL() time.Duration {
	return time.Duration(c.FacilityTTLSeconds) * time.Second
}

// SearchTTL returns the search cache TTL as a duration.
func (c CacheConfig) SearchTTL() time.Duration {
	return time.Duration(c.SearchTTLSeconds) * time.Second
}

// NegativeTTL returns the not-found cache TTL as a duration.
func (c CacheConfig) NegativeTTL() time.Duration {
	return time.Duration(c.NegativeTTLSeconds) * time.Second
}

// LoggingConfig captures logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// Load reads configuration from the provided path and environment variables.
// Environment variables use the PULSE_QUERY_ prefix with underscores, e.g.
// PULSE_QUERY_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8091)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("opensearch.url", "http://localhost:9200")
	v.SetDefault("opensearch.index", "facilities")
	v.SetDefault("opensearch.enabled", true)
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("cache.facility_ttl_seconds", 300)
	v.SetDefault("cache.search_ttl_seconds", 180)
	v.SetDefault("cache.negative_ttl_seconds", 15)
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

	v.SetEnvPrefix("PULSE_QUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
