package library

import (
	"os"
	"strconv"
	"time"
)

// Config carries the handful of knobs the application reads from the
// environment (main loads .env via godotenv before calling LoadConfig).
type Config struct {
	DBPath         string
	GoogleBooksURL string
	LoanPeriod     time.Duration
	LogLevel       string
}

// LoadConfig reads configuration from the environment with sensible
// defaults; a missing variable is never an error.
func LoadConfig() *Config {
	days := 7
	if v := getEnv("LOAN_PERIOD_DAYS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	return &Config{
		DBPath:         getEnv("LIBRARY_DB", "library.db"),
		GoogleBooksURL: getEnv("GOOGLE_BOOKS_URL", DefaultGoogleBooksURL),
		LoanPeriod:     time.Duration(days) * 24 * time.Hour,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
