package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// Config holds application configuration, loaded from environment
// variables with development defaults.
type Config struct {
	Port            string
	DBConn          string
	DBMaxConns      int
	Migrate         bool
	LogLevel        string
	JWTSecret       string
	HTTPMaxInflight int
}

func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		DBConn:          getEnv("DB_CONN", ""),
		DBMaxConns:      getIntEnv("DB_MAX_CONNS", defaultMaxConns()),
		Migrate:         getEnv("DB_MIGRATE", "0") == "1",
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		HTTPMaxInflight: getIntEnv("HTTP_MAX_INFLIGHT", 64),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func defaultMaxConns() int {
	n := runtime.GOMAXPROCS(0) * 4
	if n < 4 {
		return 4
	}
	if n > 50 {
		return 50
	}
	return n
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
