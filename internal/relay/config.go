// Package relay provides configuration helpers that define runtime
// defaults, sanitization, and rate-limiting parameters for the chat relay.
package relay

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultHistoryLimit    = 20
	defaultRateLimitBurst  = 30
	defaultRefillInterval  = time.Second
	defaultRedisHistoryKey = "radio:chat:messages"
	defaultLogLevel        = "info"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration. A Config is plain data; the hub
// copies and sanitizes it at construction time, so there is no shared
// mutable configuration state anywhere in the process.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	HistoryLimit    int
	RateLimit       RateLimitConfig
	RedisURL        string
	RedisHistoryKey string
	LogLevel        string
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		HistoryLimit:   defaultHistoryLimit,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateLimitBurst,
			RefillInterval: defaultRefillInterval,
		},
		RedisHistoryKey: defaultRedisHistoryKey,
		LogLevel:        defaultLogLevel,
	}
}

// sanitized returns a copy of the config with zero or invalid fields
// replaced by defaults.
func (c Config) sanitized() Config {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaultRateLimitBurst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRefillInterval
	}
	if c.RedisHistoryKey == "" {
		c.RedisHistoryKey = defaultRedisHistoryKey
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables, falling back
// to defaults for anything unset or unparseable.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if limit := os.Getenv("HISTORY_LIMIT"); limit != "" {
		cfg.HistoryLimit = parseIntValue(limit, cfg.HistoryLimit)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")

	if key := os.Getenv("REDIS_HISTORY_KEY"); key != "" {
		cfg.RedisHistoryKey = key
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
