package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port          string
	DatabaseURL   string
	MigrationsDir string

	RateLimitPerMinute      int
	RateLimitBurst          int
	TokenRateLimitPerMinute int
	TokenRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}

	return Config{
		Port:          port,
		DatabaseURL:   os.Getenv("DB_DSN"),
		MigrationsDir: migrationsDir,

		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		TokenRateLimitPerMinute: readInt("TOKEN_RATE_LIMIT_PER_MIN", 600),
		TokenRateLimitBurst:     readInt("TOKEN_RATE_LIMIT_BURST", 120),
	}
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
