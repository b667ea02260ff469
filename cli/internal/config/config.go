// Package config loads pulsectl configuration with the cascade:
// flags > explicit file > ~/.pulsectl/config.yaml > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds pulsectl connection settings.
type Config struct {
	NATSURL   string `yaml:"nats_url" mapstructure:"nats_url"`
	StreamURL string `yaml:"stream_url" mapstructure:"stream_url"`
	QueryURL  string `yaml:"query_url" mapstructure:"query_url"`
}

// Default returns the out-of-the-box configuration.
func Default() *Config {
	return &Config{
		NATSURL:   "nats://localhost:4222",
		StreamURL: "http://localhost:8090",
		QueryURL:  "http://localhost:8091",
	}
}

// Load reads configuration from path, falling back to
// $HOME/.pulsectl/config.yaml when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("nats_url", def.NATSURL)
	v.SetDefault("stream_url", def.StreamURL)
	v.SetDefault("query_url", def.QueryURL)

	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".pulsectl", "config.yaml")
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
// Used by "pulsectl config init" to scaffold a config file.
func Save(cfg *Config, path string) error {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".pulsectl", "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
