package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/cycle-tracker/internal/logger"
)

// Store drivers selectable with STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRemote   = "remote"
)

type AppConfig struct {
	Port        string
	LogLevel    string
	Environment string

	// StoreDriver picks where samples live: memory, postgres or remote.
	StoreDriver string
	DatabaseURL string

	// BackendURL is the base URL of the remote data-sample API (remote driver).
	BackendURL      string
	BackendPageSize int
	HTTPTimeout     time.Duration

	// In-memory store retention, measured on the sample date (0 = unlimited).
	StoreMaxAge time.Duration

	// RolloverAt is the UTC wall-clock time (HH:MM) of the daily rollover job.
	RolloverAt string

	SessionTTL      time.Duration
	SummaryCacheTTL time.Duration

	// PolicyFile is an optional YAML prediction policy, reloaded on change.
	PolicyFile string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.Log.Infof("config: no .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.Environment = getenvDefault("ENVIRONMENT", "development")

	cfg.StoreDriver = getenvDefault("STORE_DRIVER", DriverMemory)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.BackendURL = os.Getenv("BACKEND_URL")
	cfg.BackendPageSize = getenvInt("BACKEND_PAGE_SIZE", 1000)
	cfg.RolloverAt = getenvDefault("ROLLOVER_AT", "00:05")
	cfg.PolicyFile = os.Getenv("POLICY_FILE")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "0"); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getenvDuration("SESSION_TTL", "30m"); err != nil {
		return nil, err
	}
	if cfg.SummaryCacheTTL, err = getenvDuration("SUMMARY_CACHE_TTL", "30m"); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s driver", DriverPostgres)
		}
	case DriverRemote:
		if c.BackendURL == "" {
			return fmt.Errorf("BACKEND_URL is required for the %s driver", DriverRemote)
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}
	if _, err := time.Parse("15:04", c.RolloverAt); err != nil {
		return fmt.Errorf("invalid ROLLOVER_AT %q: want HH:MM", c.RolloverAt)
	}
	if c.BackendPageSize <= 0 {
		return fmt.Errorf("BACKEND_PAGE_SIZE must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
