package config

import (
	"fmt"
	"time"
)

const (
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

type Config struct {
	ServerAddr      string
	DatabaseDSN     string
	AllowedOrigins  []string
	HistoryCap      int
	SnapshotLimit   int
	IdentityTimeout time.Duration
	MetricsBackend  string
	Env             string
	LogLevel        string
	// RateLimit is REST requests per second per client address; 0 disables.
	RateLimit float64
	RateBurst int
}

// InMemory reports whether identities live in process memory rather than
// Postgres.
func (c *Config) InMemory() bool {
	return c.DatabaseDSN == ""
}

// Validate checks c and fills in the backend default.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.HistoryCap <= 0 {
		return fmt.Errorf("history cap must be positive, got %d", c.HistoryCap)
	}
	if c.SnapshotLimit <= 0 {
		return fmt.Errorf("snapshot limit must be positive, got %d", c.SnapshotLimit)
	}
	if c.IdentityTimeout <= 0 {
		return fmt.Errorf("identity timeout must be positive, got %s", c.IdentityTimeout)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limiting, got %d", c.RateBurst)
	}

	switch c.MetricsBackend {
	case "":
		c.MetricsBackend = MetricsExpvar
	case MetricsExpvar, MetricsPrometheus:
	default:
		return fmt.Errorf("unknown metrics backend %q", c.MetricsBackend)
	}

	return nil
}

func NewConfig(c Config) (*Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}
