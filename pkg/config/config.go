package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// Config holds application configuration.
type Config struct {
	Port          string
	DBPath        string
	LogLevel      string
	PenaltyRate   decimal.Decimal // percent per month
	PenaltyCapPct decimal.Decimal // percent of balance, 0 disables capping
	SweepSchedule string          // cron expression for the status sweep
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	penaltyRate, err := decimalEnv("PENALTY_RATE", "2")
	if err != nil {
		return nil, err
	}
	penaltyCap, err := decimalEnv("PENALTY_CAP_PCT", "0")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBPath:        getEnv("DB_PATH", "loancore.db"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		PenaltyRate:   penaltyRate,
		PenaltyCapPct: penaltyCap,
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "0 1 * * *"),
	}

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DB_PATH is required")
	}
	if cfg.PenaltyRate.IsNegative() {
		return nil, fmt.Errorf("PENALTY_RATE must not be negative")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func decimalEnv(key, defaultVal string) (decimal.Decimal, error) {
	raw := getEnv(key, defaultVal)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
