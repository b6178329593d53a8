package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"signalArmyBot/internal/adapters/logger"
)

// Venue identifies which exchange adapter the engine trades through.
type Venue string

const (
	VenueKuCoin  Venue = "kucoin"
	VenueBinance Venue = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Exchange
	Venue      Venue
	UseSandbox bool   // sandbox/testnet endpoints
	Currency   string // settlement currency for balance lookups

	// Dispatch
	MaxConcurrent  int           // concurrent user executions, 0 = GOMAXPROCS
	PerUserTimeout time.Duration // wall-clock bound per user task

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "text" or "json"

	// Exchange client
	HTTPTimeout time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.Venue = Venue(strings.ToLower(getEnv("VENUE", string(VenueKuCoin))))
	if cfg.Venue != VenueKuCoin && cfg.Venue != VenueBinance {
		errs = append(errs, fmt.Sprintf("unknown VENUE %q (want kucoin or binance)", cfg.Venue))
	}
	cfg.UseSandbox = getEnvAsBool("USE_SANDBOX", true) // default to sandbox for safety
	cfg.Currency = getEnv("SETTLEMENT_CURRENCY", "USDT")

	cfg.MaxConcurrent = getEnvAsInt("MAX_CONCURRENT_USERS", 0)
	if cfg.MaxConcurrent < 0 {
		errs = append(errs, "MAX_CONCURRENT_USERS cannot be negative")
	}

	perUserTimeoutSeconds := getEnvAsInt("PER_USER_TIMEOUT_SECONDS", 30)
	if perUserTimeoutSeconds <= 0 {
		errs = append(errs, "PER_USER_TIMEOUT_SECONDS must be positive")
	}
	cfg.PerUserTimeout = time.Duration(perUserTimeoutSeconds) * time.Second

	cfg.DBPath = getEnv("DB_PATH", "./data/signal_army.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("unknown LOG_FORMAT %q (want text or json)", cfg.LogFormat))
	}

	httpTimeoutSeconds := getEnvAsInt("HTTP_TIMEOUT_SECONDS", 10)
	if httpTimeoutSeconds <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPTimeout = time.Duration(httpTimeoutSeconds) * time.Second

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
