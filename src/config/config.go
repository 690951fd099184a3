package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	DataDir       string
	SourcePattern string
	DatabasePath  string
	LogLevel      string

	// Freshness check
	UpdateFrequency time.Duration

	// Known-bad source rows whose net quantity takes the sell formula
	ManualFixPositions []int
	ManualFixVersion   string

	// Price oracle settings
	PriceAPIBaseURL string
	PriceCurrency   string
	PriceTimeout    time.Duration

	// Historical exchange rates
	FXAPIBaseURL string

	// Read API
	Port string
}

// Cfg is a global instance of the AppConfig, populated by LoadConfig for the CLI entrypoint.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
func LoadConfig() *AppConfig {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()

	// 2. If not found, try loading from the parent directory
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil && !os.IsNotExist(errEnv) {
		log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
	}

	Cfg = &AppConfig{
		DataDir:       getEnv("DATA_DIR", "./data"),
		SourcePattern: getEnv("SOURCE_PATTERN", "*.csv"),
		DatabasePath:  getEnv("DATABASE_PATH", "./stakeledger.db"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		UpdateFrequency: getEnvAsDuration("UPDATE_FREQUENCY", 24*time.Hour),

		ManualFixPositions: getEnvAsIntList("MANUAL_FIX_POSITIONS"),
		ManualFixVersion:   getEnv("MANUAL_FIX_VERSION", "1"),

		PriceAPIBaseURL: getEnv("PRICE_API_BASE_URL", "https://query1.finance.yahoo.com"),
		PriceCurrency:   strings.ToUpper(getEnv("PRICE_CURRENCY", "EUR")),
		PriceTimeout:    getEnvAsDuration("PRICE_TIMEOUT", 20*time.Second),

		FXAPIBaseURL: getEnv("FX_API_BASE_URL", "https://data-api.ecb.europa.eu"),

		Port: getEnv("PORT", "8080"),
	}
	return Cfg
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsIntList parses a comma-separated list of integers, skipping invalid entries.
func getEnvAsIntList(key string) []int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}
	var values []int
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			log.Printf("Ignoring invalid integer '%s' in %s", part, key)
			continue
		}
		values = append(values, n)
	}
	return values
}
