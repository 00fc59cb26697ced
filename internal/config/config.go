// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config provides configuration management for roomgate.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the YAML configuration structure shared by the
// roomsim daemon and the roomgate CLI.
type FileConfig struct {
	LogLevel   string          `yaml:"logLevel,omitempty"`
	LogService string          `yaml:"logService,omitempty"`
	Client     ClientConfig    `yaml:"client,omitempty"`
	Sim        SimConfig       `yaml:"sim,omitempty"`
	Telemetry  TelemetryConfig `yaml:"telemetry,omitempty"`
}

// ClientConfig holds room-service client configuration.
type ClientConfig struct {
	BaseURL   string  `yaml:"baseUrl"`
	Timeout   string  `yaml:"timeout,omitempty"` // e.g. "10s"
	RateLimit float64 `yaml:"rateLimit,omitempty"`
	RateBurst int     `yaml:"rateBurst,omitempty"`
	Tracing   *bool   `yaml:"tracing,omitempty"`
}

// SimConfig holds the reference room service configuration.
type SimConfig struct {
	ListenAddr  string          `yaml:"listenAddr,omitempty"`
	ExternalURL string          `yaml:"externalUrl,omitempty"` // base of issued meeting URLs
	DataDir     string          `yaml:"dataDir,omitempty"`     // sqlite + badger live here
	RoomsFile   string          `yaml:"roomsFile,omitempty"`   // optional YAML fixtures, hot-reloaded
	TicketTTL   string          `yaml:"ticketTtl,omitempty"`   // e.g. "2m"
	Redis       RedisConfig     `yaml:"redis,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// RedisConfig holds the session-store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// RateLimitConfig holds rate limiting settings for the admission
// endpoints. Pointers distinguish "not set" from explicit zero.
type RateLimitConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	Limit   *int  `yaml:"limit,omitempty"` // requests per window
	Window  *int  `yaml:"window,omitempty"` // seconds
}

// TelemetryConfig holds OTLP tracing settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	ExporterType string  `yaml:"exporterType,omitempty"` // "grpc" or "http"
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty"`
}

// Defaults applied when the file leaves fields unset.
const (
	DefaultListenAddr = ":8090"
	DefaultTimeout    = 10 * time.Second
	DefaultTicketTTL  = 2 * time.Minute
	DefaultRateLimit  = 30
	DefaultRateWindow = 60
)

// Load reads a YAML config file and applies environment overrides.
// A missing path yields the pure default configuration.
func Load(path string) (*FileConfig, error) {
	cfg := &FileConfig{}
	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *FileConfig) applyEnv() {
	if v := os.Getenv("ROOMGATE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ROOMGATE_BASE_URL"); v != "" {
		c.Client.BaseURL = v
	}
	if v := os.Getenv("ROOMGATE_SIM_LISTEN"); v != "" {
		c.Sim.ListenAddr = v
	}
	if v := os.Getenv("ROOMGATE_SIM_DATA_DIR"); v != "" {
		c.Sim.DataDir = v
	}
	if v := os.Getenv("ROOMGATE_REDIS_ADDR"); v != "" {
		c.Sim.Redis.Addr = v
	}
	if v := os.Getenv("ROOMGATE_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
}

// Validate checks cross-field consistency and duration syntax.
func (c *FileConfig) Validate() error {
	if _, err := c.ClientTimeout(); err != nil {
		return err
	}
	if _, err := c.TicketTTL(); err != nil {
		return err
	}
	if c.Client.RateLimit < 0 {
		return fmt.Errorf("config: client.rateLimit must not be negative")
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.ExporterType {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("config: telemetry.exporterType %q (supported: grpc, http)", c.Telemetry.ExporterType)
		}
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("config: telemetry.samplingRate must be within [0,1]")
	}
	return nil
}

// ClientTimeout parses the client timeout, falling back to the default.
func (c *FileConfig) ClientTimeout() (time.Duration, error) {
	return parseDuration("client.timeout", c.Client.Timeout, DefaultTimeout)
}

// TicketTTL parses the join-ticket TTL, falling back to the default.
func (c *FileConfig) TicketTTL() (time.Duration, error) {
	return parseDuration("sim.ticketTtl", c.Sim.TicketTTL, DefaultTicketTTL)
}

// SimListenAddr returns the listen address with the default applied.
func (c *FileConfig) SimListenAddr() string {
	if c.Sim.ListenAddr != "" {
		return c.Sim.ListenAddr
	}
	return DefaultListenAddr
}

// SimRateLimit resolves the rate limit settings with defaults applied.
// Returns enabled, request limit and window length.
func (c *FileConfig) SimRateLimit() (bool, int, time.Duration) {
	rl := c.Sim.RateLimit
	enabled := true
	if rl.Enabled != nil {
		enabled = *rl.Enabled
	}
	limit := DefaultRateLimit
	if rl.Limit != nil {
		limit = *rl.Limit
	}
	window := DefaultRateWindow
	if rl.Window != nil {
		window = *rl.Window
	}
	return enabled, limit, time.Duration(window) * time.Second
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", field)
	}
	return d, nil
}
