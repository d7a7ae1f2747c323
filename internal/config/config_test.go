package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		ServerAddr:      "localhost:8080",
		DatabaseDSN:     "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable",
		AllowedOrigins:  []string{"http://localhost:3000"},
		HistoryCap:      1000,
		SnapshotLimit:   50,
		IdentityTimeout: 5 * time.Second,
		MetricsBackend:  MetricsPrometheus,
		Env:             "dev",
		RateLimit:       20,
		RateBurst:       40,
	}
}

func TestNewConfig(t *testing.T) {
	tcases := []struct {
		name   string
		modify func(c *Config)
		err    bool
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "empty DSN uses memory store",
			modify: func(c *Config) { c.DatabaseDSN = "" },
		},
		{
			name:   "empty address",
			modify: func(c *Config) { c.ServerAddr = "" },
			err:    true,
		},
		{
			name:   "zero history cap",
			modify: func(c *Config) { c.HistoryCap = 0 },
			err:    true,
		},
		{
			name:   "negative snapshot limit",
			modify: func(c *Config) { c.SnapshotLimit = -1 },
			err:    true,
		},
		{
			name:   "zero identity timeout",
			modify: func(c *Config) { c.IdentityTimeout = 0 },
			err:    true,
		},
		{
			name:   "rate limiting disabled",
			modify: func(c *Config) { c.RateLimit, c.RateBurst = 0, 0 },
		},
		{
			name:   "negative rate limit",
			modify: func(c *Config) { c.RateLimit = -1 },
			err:    true,
		},
		{
			name:   "rate limit without burst",
			modify: func(c *Config) { c.RateBurst = 0 },
			err:    true,
		},
		{
			name:   "unknown metrics backend",
			modify: func(c *Config) { c.MetricsBackend = "statsd" },
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			in := validConfig()
			tc.modify(&in)

			config, err := NewConfig(in)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			require.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, in.ServerAddr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, in.DatabaseDSN, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, in.AllowedOrigins, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, in.DatabaseDSN == "", config.InMemory())
		})
	}
}

func TestNewConfigDefaultsMetricsBackend(t *testing.T) {
	in := validConfig()
	in.MetricsBackend = ""

	config, err := NewConfig(in)
	require.NoError(t, err)
	assert.Equal(t, MetricsExpvar, config.MetricsBackend)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CHAT_TEST_INT", "42")
	t.Setenv("CHAT_TEST_BAD_INT", "forty")
	t.Setenv("CHAT_TEST_DURATION", "250ms")
	t.Setenv("CHAT_TEST_FLOAT", "2.5")

	assert.Equal(t, 42, GetEnvInt("CHAT_TEST_INT", 7))
	assert.Equal(t, 7, GetEnvInt("CHAT_TEST_BAD_INT", 7))
	assert.Equal(t, 7, GetEnvInt("CHAT_TEST_UNSET", 7))
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("CHAT_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("CHAT_TEST_UNSET", time.Second))
	assert.Equal(t, 2.5, GetEnvFloat("CHAT_TEST_FLOAT", 1))
	assert.Equal(t, float64(1), GetEnvFloat("CHAT_TEST_UNSET", 1))
	assert.Equal(t, "fallback", GetEnv("CHAT_TEST_UNSET", "fallback"))
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CHAT_TEST_FROM_FILE=file\nCHAT_TEST_PRESET=file\n"), 0o600))
	t.Setenv("CHAT_TEST_PRESET", "process")
	t.Cleanup(func() { os.Unsetenv("CHAT_TEST_FROM_FILE") })

	LoadEnv(path, filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "file", os.Getenv("CHAT_TEST_FROM_FILE"))
	assert.Equal(t, "process", os.Getenv("CHAT_TEST_PRESET"))
}
