package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Sources       SourcesConfig
	Observability ObservabilityConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	AllowedOrigins     []string
	MaxUploadMB        int
}

// SourcesConfig points at the per-source parsing options file.
type SourcesConfig struct {
	Path string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
			AllowedOrigins:     getEnvAsList("SERVER_ALLOWED_ORIGINS", []string{"*"}),
			MaxUploadMB:        getEnvAsInt("SERVER_MAX_UPLOAD_MB", 64),
		},
		Sources: SourcesConfig{
			Path: getEnv("SOURCES_CONFIG_PATH", "configs/sources.json"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if cfg.Sources.Path == "" {
		return nil, errors.New("SOURCES_CONFIG_PATH is required")
	}
	if cfg.Server.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("SERVER_MAX_UPLOAD_MB must be positive, got %d", cfg.Server.MaxUploadMB)
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
