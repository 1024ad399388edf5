// Package config loads server configuration from warroom.yaml with
// environment overrides. Database configuration stays in pkg/database and
// comes from the environment only.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when warroom.yaml is absent or partial.
const (
	DefaultPort              = 8080
	DefaultQueueCapacity     = 256
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultMarkerDir         = "/tmp/warroom"
	DefaultHookEventTTL      = 72 * time.Hour
	DefaultRetentionInterval = time.Hour
)

// Config is the server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Broker    BrokerConfig    `yaml:"broker"`
	Marker    MarkerConfig    `yaml:"marker"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BrokerConfig holds event broker settings.
type BrokerConfig struct {
	QueueCapacity     int           `yaml:"queue_capacity"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// MarkerConfig holds mission-active marker settings.
type MarkerConfig struct {
	Dir string `yaml:"dir"`
}

// RetentionConfig holds hook telemetry retention settings. Events linked to
// the current mission are always kept regardless of age.
type RetentionConfig struct {
	HookEventTTL time.Duration `yaml:"hook_event_ttl"`
	Interval     time.Duration `yaml:"interval"`
}

// Load reads the YAML file at path (missing file is fine), fills defaults,
// and applies environment overrides (HTTP_PORT, MARKER_DIR).
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Broker.QueueCapacity == 0 {
		c.Broker.QueueCapacity = DefaultQueueCapacity
	}
	if c.Broker.HeartbeatInterval == 0 {
		c.Broker.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Marker.Dir == "" {
		c.Marker.Dir = DefaultMarkerDir
	}
	if c.Retention.HookEventTTL == 0 {
		c.Retention.HookEventTTL = DefaultHookEventTTL
	}
	if c.Retention.Interval == 0 {
		c.Retention.Interval = DefaultRetentionInterval
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MARKER_DIR"); v != "" {
		c.Marker.Dir = v
	}
}
