package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerAddr string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Token signing keys are separate per token class: a leaked access
	// secret must not allow forging refresh tokens, and vice versa.
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	RedisAddr          string
	LoginMaxAttempts   int
	LoginAttemptWindow time.Duration

	LogLevel string
}

func Load() *Config {
	return &Config{
		ServerAddr:         getEnvOrDefault("SERVER_ADDR", ":3000"),
		DBHost:             getEnvOrDefault("DB_HOST", "localhost"),
		DBPort:             getEnvOrDefault("DB_PORT", "5432"),
		DBUser:             getEnvOrDefault("DB_USER", "rpm"),
		DBPassword:         getEnvOrDefault("DB_PASSWORD", "rpm_dev_password"),
		DBName:             getEnvOrDefault("DB_NAME", "rpm"),
		AccessTokenSecret:  getEnvOrDefault("ACCESS_TOKEN_SECRET", generateDefaultSecret()),
		RefreshTokenSecret: getEnvOrDefault("REFRESH_TOKEN_SECRET", generateDefaultSecret()),
		AccessTokenTTL:     getDurationOrDefault("ACCESS_TOKEN_EXPIRATION", 15*time.Minute),
		RefreshTokenTTL:    getDurationOrDefault("REFRESH_TOKEN_EXPIRATION", 7*24*time.Hour),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		LoginMaxAttempts:   getIntOrDefault("LOGIN_MAX_ATTEMPTS", 10),
		LoginAttemptWindow: getDurationOrDefault("LOGIN_ATTEMPT_WINDOW", 15*time.Minute),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func generateDefaultSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "dev-secret-change-in-production"
	}
	return hex.EncodeToString(bytes)
}
