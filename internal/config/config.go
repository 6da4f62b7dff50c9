package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL     string
	WSURL          string
	DBFile         string
	ReconnectDelay time.Duration
	RequestTimeout time.Duration
}

func Load() (*Config, error) {
	// Optional .env next to the binary; absence is fine.
	_ = godotenv.Load()

	reconnectDelay, err := time.ParseDuration(getEnv("GOVORILKA_RECONNECT_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVORILKA_RECONNECT_DELAY: %w", err)
	}

	requestTimeout, err := time.ParseDuration(getEnv("GOVORILKA_REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOVORILKA_REQUEST_TIMEOUT: %w", err)
	}

	cfg := &Config{
		APIBaseURL:     getEnv("GOVORILKA_API_URL", "http://localhost:8080"),
		WSURL:          getEnv("GOVORILKA_WS_URL", "ws://localhost:8080/ws"),
		DBFile:         getEnv("GOVORILKA_DB", "govorilka.db"),
		ReconnectDelay: reconnectDelay,
		RequestTimeout: requestTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("GOVORILKA_API_URL is required")
	}
	if c.WSURL == "" {
		return fmt.Errorf("GOVORILKA_WS_URL is required")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("GOVORILKA_RECONNECT_DELAY must be greater than 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
