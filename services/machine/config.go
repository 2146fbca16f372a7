package main

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the runtime settings of the machine service
type Config struct {
	Port         string
	ServiceName  string
	OTLPEndpoint string
	LogLevel     string

	DatabaseEnabled  bool
	DatabaseUser     string
	DatabasePassword string
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string

	DTMServer  string
	ServiceURL string
}

// LoadConfig collects configuration from environment with defaults
func LoadConfig() Config {
	return Config{
		Port:         getEnv("PORT", "8080"),
		ServiceName:  getEnv("SERVICE_NAME", "machine-service"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		DatabaseEnabled:  getEnvBool("DATABASE_ENABLED", true),
		DatabaseUser:     getEnv("DATABASE_USER", "root"),
		DatabasePassword: getEnv("DATABASE_PASSWORD", "pass"),
		DatabaseHost:     getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:     getEnv("DATABASE_PORT", "5432"),
		DatabaseName:     getEnv("DATABASE_NAME", "machine_db"),

		DTMServer:  getEnv("DTM_SERVER", "http://dtm:36789/api/dtmsvr"),
		ServiceURL: getEnv("SERVICE_URL", "http://machine-service:8080"),
	}
}

// DatabaseURL builds the pgx pool DSN
func (c Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&pool_max_conns=25&pool_min_conns=5",
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
