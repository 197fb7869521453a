package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Service endpoints
	TCPHost  string `env:"TCP_HOST" default:"localhost"`
	TCPPort  int    `env:"TCP_PORT" default:"8081"`
	HTTPPort int    `env:"HTTP_PORT" default:"8084"` // admin API

	// Presence mirror (empty URL disables it)
	RedisURL      string `env:"REDIS_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Event transport
	BusCapacity   int           `env:"BUS_CAPACITY" default:"100"`
	MaxFrameSize  int           `env:"MAX_FRAME_SIZE" default:"1048576"`
	ReadTimeout   time.Duration `env:"READ_TIMEOUT" default:"5m"`
	WriteTimeout  time.Duration `env:"WRITE_TIMEOUT" default:"10s"`
	RateLimit     float64       `env:"RATE_LIMIT" default:"0"` // events/sec per connection, 0 = off; excess events are dropped
	RateBurst     int           `env:"RATE_BURST" default:"20"`
	PruneInterval time.Duration `env:"PRUNE_INTERVAL" default:"30s"`

	// Monitoring
	PrometheusEnabled bool `env:"PROMETHEUS_ENABLED" default:"true"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// A missing .env file is fine - system env vars still apply
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	// Endpoints
	if err := loadEnvString(&config.TCPHost, "TCP_HOST", "localhost"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.TCPPort, "TCP_PORT", 8081); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 8084); err != nil {
		return nil, err
	}

	// Redis
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}

	// Event transport
	if err := loadEnvInt(&config.BusCapacity, "BUS_CAPACITY", 100); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MaxFrameSize, "MAX_FRAME_SIZE", 1024*1024); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ReadTimeout, "READ_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.WriteTimeout, "WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvFloat(&config.RateLimit, "RATE_LIMIT", 0); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.RateBurst, "RATE_BURST", 20); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.PruneInterval, "PRUNE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	// Monitoring
	if err := loadEnvBool(&config.PrometheusEnabled, "PROMETHEUS_ENABLED", true); err != nil {
		return nil, err
	}

	// Logging
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "json"); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	// Validate ports are in valid range
	if c.TCPPort < 0 || c.TCPPort > 65535 {
		errors = append(errors, "TCP_PORT must be between 0 and 65535")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 0 and 65535")
	}

	if c.BusCapacity < 1 {
		errors = append(errors, "BUS_CAPACITY must be at least 1")
	}
	if c.MaxFrameSize < 1 {
		errors = append(errors, "MAX_FRAME_SIZE must be at least 1")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.PruneInterval < 0 {
		errors = append(errors, "READ_TIMEOUT, WRITE_TIMEOUT and PRUNE_INTERVAL must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errors = append(errors, "RATE_BURST must be at least 1 when RATE_LIMIT is set")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// TCPAddr is the bind address for the event server.
func (c *Config) TCPAddr() string {
	return fmt.Sprintf("%s:%d", c.TCPHost, c.TCPPort)
}

// HTTPAddr is the bind address for the admin API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.TCPHost, c.HTTPPort)
}

// SlogLevel maps LOG_LEVEL onto slog levels, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
