package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", " Memory ")
	t.Setenv("LEDGER_ACTIVITY_WINDOW", "168h")
	t.Setenv("LEDGER_REFERENCE_PREFIX", "JV")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 168*time.Hour, cfg.LedgerActivityWindow)
	assert.Equal(t, "JV", cfg.LedgerReferencePrefix)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "*/30 * * * *", cfg.IntegrityCron)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":  func(c *Config) { c.StoreDriver = "sqlite" },
		"missing dsn":     func(c *Config) { c.StoreDriver = StoreDriverPostgres; c.PGDSN = "" },
		"blank prefix":    func(c *Config) { c.LedgerReferencePrefix = " " },
		"zero window":     func(c *Config) { c.LedgerActivityWindow = 0 },
		"zero rate limit": func(c *Config) { c.RateLimitPerMinute = 0 },
		"zero workers":    func(c *Config) { c.WorkerConcurrency = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, testConfig().Validate())
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogFormat = "json"
	newLogger(cfg, &buf).Debug("posted", "reference", "GL-1")
	assert.Contains(t, buf.String(), `"reference":"GL-1"`)

	buf.Reset()
	cfg.AppEnv = "production"
	newLogger(cfg, &buf).Debug("hidden")
	assert.Empty(t, buf.String())
}
