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

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Trading platform API
	BrokerBaseURL string
	BrokerAPIKey  string

	// Telegram alert sink (optional; alerts are dropped when unset)
	TelegramBotID  string
	TelegramChatID string

	// Sync tuning
	SyncSchedule      string        // cron expression; empty disables scheduled sync
	SyncAccounts      []string      // restrict sync to these account ids; empty means all
	SyncOverlap       time.Duration // overlap window re-requested before the high-water mark
	SyncRetryAttempts int
	SyncRetryBase     time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory, always resolved to an absolute path
	dataDir := getEnv("BASIS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		BrokerBaseURL: getEnv("BROKER_API_URL", ""),
		BrokerAPIKey:  getEnv("BROKER_API_KEY", ""),

		TelegramBotID:  getEnv("TELEGRAM_BOT_ID", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),

		// Weekdays at 22:30 UTC, after US market close
		SyncSchedule:      getEnv("SYNC_SCHEDULE", "30 22 * * 1-5"),
		SyncAccounts:      splitList(getEnv("SYNC_ACCOUNTS", "")),
		SyncOverlap:       time.Duration(getEnvAsInt("SYNC_OVERLAP_DAYS", 7)) * 24 * time.Hour,
		SyncRetryAttempts: getEnvAsInt("SYNC_RETRY_ATTEMPTS", 4),
		SyncRetryBase:     time.Duration(getEnvAsInt("SYNC_RETRY_BASE_MS", 500)) * time.Millisecond,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	// Broker credentials are optional at startup: the query layer can
	// serve an existing ledger without them. Sync runs fail per account
	// with a configuration error instead.
	return nil
}

// LedgerDBPath returns the path of the ledger database file.
func (c *Config) LedgerDBPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// CacheDBPath returns the path of the cache database file.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Helper functions
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
