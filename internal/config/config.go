package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// ServerConfig is the process configuration, read from an optional YAML file
// and overridable through environment variables.
type ServerConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	MaxRooms     int    `yaml:"max_rooms"`
	MaxLineBytes int    `yaml:"max_line_bytes"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
}

const (
	defaultListenAddr   = ":8422"
	defaultMaxRooms     = 256
	defaultMaxLineBytes = 1024
)

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides, and validates the result.
func Load(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{
		ListenAddr:   defaultListenAddr,
		MaxRooms:     defaultMaxRooms,
		MaxLineBytes: defaultMaxLineBytes,
	}

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("TICTACD_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("TICTACD_MAX_ROOMS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRooms = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TICTACD_MAX_LINE_BYTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxLineBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen_addr is required")
	}
	_, portStr, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen_addr %q: %w", c.ListenAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1024 || port > 65535 {
		return fmt.Errorf("listen_addr port must be an integer between 1024 and 65535, got %q", portStr)
	}
	if c.MaxRooms <= 0 {
		return errors.New("max_rooms must be positive")
	}
	if c.MaxLineBytes < 64 {
		return errors.New("max_line_bytes must be at least 64")
	}
	return nil
}
