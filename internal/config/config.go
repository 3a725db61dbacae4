// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath       string
	AccountsPath       string
	UsageHistoryPath   string
	GoogleClientID     string
	GoogleClientSecret string

	RequestThrottlingEnabled bool
	RequestDelayMs           int

	ShaperMinDelayMs int
	ShaperJitterMs   int

	TelemetryIntervalMs int
	TelemetryJitterMs   int
	ActiveSessionWindow time.Duration
}

// Default values (spec §4, §6).
const (
	defaultRequestDelayMs    = 200
	defaultShaperMinDelayMs  = 3000
	defaultShaperJitterMs    = 2000
	defaultTelemetryInterval = 45000
	defaultTelemetryJitter   = 15000
	defaultActiveWindow      = 10 * time.Minute
)

// Load reads configuration from a settings.yaml file, the first .env file
// found, and environment variables, in that order of increasing precedence.
// Values from .env are loaded into the environment (without overriding
// variables already set), so they take precedence over settings.yaml.
func Load() (*Config, error) {
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	settings := loadSettingsFile(getSettingsFilePath())

	cfg := &Config{
		DatabasePath:       getEnvString("DATABASE_PATH", getDefaultDatabasePath()),
		AccountsPath:       getEnvString("ACCOUNTS_PATH", getDefaultAccountsPath()),
		UsageHistoryPath:   getEnvString("USAGE_HISTORY_PATH", getDefaultUsageHistoryPath()),
		GoogleClientID:     getEnvString("GOOGLE_CLIENT_ID", settings.GoogleClientID),
		GoogleClientSecret: getEnvString("GOOGLE_CLIENT_SECRET", settings.GoogleClientSecret),

		RequestThrottlingEnabled: getEnvBool("REQUEST_THROTTLING_ENABLED", settings.orDefaultThrottling()),
		RequestDelayMs:           getEnvInt("REQUEST_DELAY_MS", settings.orDefaultRequestDelayMs()),

		ShaperMinDelayMs: getEnvInt("SHAPER_MIN_DELAY_MS", settings.orDefaultShaperMinDelayMs()),
		ShaperJitterMs:   getEnvInt("SHAPER_JITTER_MS", settings.orDefaultShaperJitterMs()),

		TelemetryIntervalMs: getEnvInt("TELEMETRY_INTERVAL_MS", settings.orDefaultTelemetryInterval()),
		TelemetryJitterMs:   getEnvInt("TELEMETRY_JITTER_MS", settings.orDefaultTelemetryJitter()),
		ActiveSessionWindow: getEnvDuration("ACTIVE_SESSION_WINDOW", settings.orDefaultActiveWindow()),
	}

	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil, fmt.Errorf(
			"GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required (set via env or settings.yaml)")
	}

	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Dir(cfg.AccountsPath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "antigravity-proxy", ".env"),
		)
	}

	if cwd, err := os.Getwd(); err == nil {
		parent := filepath.Dir(cwd)
		paths = append(paths, filepath.Join(parent, ".env"))
		grandparent := filepath.Dir(parent)
		paths = append(paths, filepath.Join(grandparent, ".env"))
	}

	return paths
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "antigravity-proxy")
}

// getDefaultDatabasePath returns the default path for the SQLite database.
func getDefaultDatabasePath() string {
	dir := configDir()
	if dir == "" {
		return "usage.db"
	}
	return filepath.Join(dir, "usage.db")
}

// getDefaultAccountsPath returns the default path for accounts.json (spec §6).
func getDefaultAccountsPath() string {
	dir := configDir()
	if dir == "" {
		return "accounts.json"
	}
	return filepath.Join(dir, "accounts.json")
}

// getDefaultUsageHistoryPath returns the default path for usage-history.json (spec §6).
func getDefaultUsageHistoryPath() string {
	dir := configDir()
	if dir == "" {
		return "usage-history.json"
	}
	return filepath.Join(dir, "usage-history.json")
}

func getSettingsFilePath() string {
	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "settings.yaml")
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
