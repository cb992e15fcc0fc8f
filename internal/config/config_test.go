package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOLDINGS_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 5*time.Second, cfg.DBBusyTimeout)
	assert.Equal(t, 30*time.Second, cfg.ImportCommitTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PositionCacheTTL)
	assert.Equal(t, DefaultSupportedCurrencies, cfg.SupportedCurrencies)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.LedgerDBPath())
	assert.Equal(t, filepath.Join(dir, "portfolio.db"), cfg.PortfolioDBPath())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HOLDINGS_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9001")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("DB_BUSY_TIMEOUT_MS", "250")
	t.Setenv("IMPORT_COMMIT_TIMEOUT", "2s")
	t.Setenv("SUPPORTED_CURRENCIES", " usd, eur ,,chf")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("MAINTENANCE_SCHEDULE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 250*time.Millisecond, cfg.DBBusyTimeout)
	assert.Equal(t, 2*time.Second, cfg.ImportCommitTimeout)
	assert.Equal(t, []string{"USD", "EUR", "CHF"}, cfg.SupportedCurrencies)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	// Empty value falls back to the default schedule
	assert.Equal(t, "0 3 * * *", cfg.MaintenanceSchedule)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HOLDINGS_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "not-a-number")
	t.Setenv("IMPORT_COMMIT_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ImportCommitTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:                8080,
			DBBusyTimeout:       time.Second,
			ImportCommitTimeout: time.Second,
			PositionCacheTTL:    time.Minute,
			SupportedCurrencies: []string{"USD"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "invalid PORT"},
		{"zero busy timeout", func(c *Config) { c.DBBusyTimeout = 0 }, "DB_BUSY_TIMEOUT_MS"},
		{"zero import timeout", func(c *Config) { c.ImportCommitTimeout = 0 }, "IMPORT_COMMIT_TIMEOUT"},
		{"zero cache ttl", func(c *Config) { c.PositionCacheTTL = 0 }, "POSITION_CACHE_TTL"},
		{"empty currencies", func(c *Config) { c.SupportedCurrencies = nil }, "must not be empty"},
		{"bad currency", func(c *Config) { c.SupportedCurrencies = []string{"EURO"} }, "invalid currency"},
		{"negative rate", func(c *Config) { c.RateLimitRPS = -1 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
