package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds environment-driven settings for the trading engine.
type Config struct {
	Port     string
	APIToken string

	// Binance
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool

	// Persistence
	DBPath string

	// Position sizing policy file
	SizingPolicyPath string

	// Exit construction
	UseOCO    bool
	StopPct   decimal.Decimal
	TargetPct decimal.Decimal

	// Rules cache
	RulesTTL time.Duration

	// Order-context retention
	ContextRetention time.Duration
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		APIToken:         os.Getenv("API_TOKEN"),
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "false") == "true",
		DBPath:           getEnv("DB_PATH", "./data/trading.db"),
		SizingPolicyPath: getEnv("SIZING_POLICY_PATH", "./config/sizing.yaml"),
		UseOCO:           getEnv("USE_OCO", "true") == "true",
		StopPct:          getEnvDecimal("STOP_PCT", "5"),
		TargetPct:        getEnvDecimal("TARGET_PCT", "10"),
		RulesTTL:         getEnvDuration("RULES_TTL_HOURS", 24) * time.Hour,
		ContextRetention: getEnvDuration("CONTEXT_RETENTION_DAYS", 30) * 24 * time.Hour,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDecimal(key, def string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(def)
}

func getEnvDuration(key string, def int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i)
		}
	}
	return time.Duration(def)
}
