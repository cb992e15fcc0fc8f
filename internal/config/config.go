// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultMaintenanceSchedule runs the daily maintenance job at 03:00 UTC
const DefaultMaintenanceSchedule = "0 3 * * *"

// DefaultSupportedCurrencies is the import currency allowlist when SUPPORTED_CURRENCIES is unset
var DefaultSupportedCurrencies = []string{
	"USD", "EUR", "GBP", "JPY", "CNY", "HKD", "CHF", "CAD", "AUD", "SGD", "TWD", "KRW",
}

// Config holds application configuration
type Config struct {
	DataDir             string // Base directory for all databases (always absolute)
	LogLevel            string
	Port                int
	DevMode             bool
	DBBusyTimeout       time.Duration // How long a writer waits for the SQLite lock
	ImportCommitTimeout time.Duration // Upper bound for the atomic import commit
	PositionCacheTTL    time.Duration
	PositionCacheClean  time.Duration
	SupportedCurrencies []string
	RateLimitRPS        float64
	RateLimitBurst      int
	CORSAllowedOrigins  []string
	MaintenanceSchedule string // cron spec, "off" disables the job
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("HOLDINGS_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("PORT", 8080),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DBBusyTimeout:       time.Duration(getEnvAsInt("DB_BUSY_TIMEOUT_MS", 5000)) * time.Millisecond,
		ImportCommitTimeout: getEnvAsDuration("IMPORT_COMMIT_TIMEOUT", 30*time.Second),
		PositionCacheTTL:    getEnvAsDuration("POSITION_CACHE_TTL", 5*time.Minute),
		PositionCacheClean:  getEnvAsDuration("POSITION_CACHE_CLEANUP", 10*time.Minute),
		SupportedCurrencies: normalizeCurrencies(getEnvAsList("SUPPORTED_CURRENCIES", DefaultSupportedCurrencies)),
		RateLimitRPS:        getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:      getEnvAsInt("RATE_LIMIT_BURST", 40),
		CORSAllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", DefaultMaintenanceSchedule),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.DBBusyTimeout <= 0 {
		return fmt.Errorf("DB_BUSY_TIMEOUT_MS must be positive")
	}
	if c.ImportCommitTimeout <= 0 {
		return fmt.Errorf("IMPORT_COMMIT_TIMEOUT must be positive")
	}
	if c.PositionCacheTTL <= 0 {
		return fmt.Errorf("POSITION_CACHE_TTL must be positive")
	}
	if len(c.SupportedCurrencies) == 0 {
		return fmt.Errorf("SUPPORTED_CURRENCIES must not be empty")
	}
	for _, code := range c.SupportedCurrencies {
		if len(code) != 3 {
			return fmt.Errorf("invalid currency in SUPPORTED_CURRENCIES: %q", code)
		}
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	return nil
}

// LedgerDBPath is the location of the transaction ledger database
func (c *Config) LedgerDBPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// PortfolioDBPath is the location of the derived positions database
func (c *Config) PortfolioDBPath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

func normalizeCurrencies(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			out = append(out, code)
		}
	}
	return out
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
