// Package config loads server configuration from an optional YAML file
// with environment overrides. The result is read once at startup and
// treated as immutable.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime settings for the relay server.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// RedisAddr, when set, switches the presence registry to Redis.
	RedisAddr string `yaml:"redis_addr"`

	// MaxMessageLen caps inbound chat text length in characters.
	MaxMessageLen int `yaml:"max_message_len"`

	// MaxConns caps concurrent WebSocket connections. Zero means unlimited.
	MaxConns int `yaml:"max_conns"`

	// MessageRate is the per-connection send rate in messages per second.
	// Zero disables rate limiting.
	MessageRate float64 `yaml:"message_rate"`

	// MessageBurst is the per-connection burst size when MessageRate is set.
	MessageBurst int `yaml:"message_burst"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		MaxMessageLen: 2000,
		MessageRate:   10,
		MessageBurst:  20,
	}
}

// Load builds a Config from defaults, then the YAML file at path (if path
// is non-empty), then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.MaxMessageLen <= 0 {
		return fmt.Errorf("max_message_len must be positive, got %d", c.MaxMessageLen)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must not be negative, got %d", c.MaxConns)
	}
	if c.MessageRate < 0 {
		return fmt.Errorf("message_rate must not be negative, got %v", c.MessageRate)
	}
	if c.MessageRate > 0 && c.MessageBurst < 1 {
		return fmt.Errorf("message_burst must be at least 1 when message_rate is set, got %d", c.MessageBurst)
	}
	return nil
}
