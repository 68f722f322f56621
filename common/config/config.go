package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Cache     CacheConfig
	Access    AccessConfig
	RateLimit RateLimitConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	PprofPort   int
}

// RateLimitConfig throttles the serving endpoints. Limits count
// requests per minute; enforcement needs the redis backend and is
// skipped silently without one.
type RateLimitConfig struct {
	Enabled         bool
	GlobalPerMinute int64
	ClientPerMinute int64
}

// CacheConfig holds the shared dataset cache settings
type CacheConfig struct {
	Enabled bool
	Host    string
	Port    int
	DB      int
	TTL     time.Duration
}

// ChunkAccessPolicy describes how virtual chunks under one URL prefix
// may be reached. Exactly one of the fields is normally set.
type ChunkAccessPolicy struct {
	Anonymous bool   `json:"anonymous,omitempty"`
	FromEnv   bool   `json:"from_env,omitempty"`
	AccessKey string `json:"access_key_id,omitempty"`
	SecretKey string `json:"secret_access_key,omitempty"`
}

// AccessConfig holds virtual chunk authorization settings.
// Read-only after Load; shared by all workers without locking.
type AccessConfig struct {
	// AuthorizedChunkAccess maps a URL prefix to the credential policy
	// used when an icechunk dataset references chunks under that prefix.
	AuthorizedChunkAccess map[string]ChunkAccessPolicy
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	access, err := parseChunkAccess(os.Getenv("MULTIDIM_AUTHORIZED_CHUNK_ACCESS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			PprofPort:   getEnvInt("PPROF_PORT", 0),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("MULTIDIM_ENABLE_CACHE", true),
			Host:    getEnv("MULTIDIM_CACHE_HOST", "127.0.0.1"),
			Port:    getEnvInt("MULTIDIM_CACHE_PORT", 6379),
			DB:      getEnvInt("MULTIDIM_CACHE_DB", 0),
			TTL:     getEnvDuration("MULTIDIM_CACHE_TTL", 300*time.Second),
		},
		Access: AccessConfig{
			AuthorizedChunkAccess: access,
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("MULTIDIM_RATE_LIMIT_ENABLED", false),
			GlobalPerMinute: int64(getEnvInt("MULTIDIM_RATE_LIMIT_GLOBAL", 600)),
			ClientPerMinute: int64(getEnvInt("MULTIDIM_RATE_LIMIT_CLIENT", 60)),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Cache.Enabled && c.Cache.Host == "" {
		return fmt.Errorf("cache host is required when caching is enabled")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.GlobalPerMinute < 1 || c.RateLimit.ClientPerMinute < 1) {
		return fmt.Errorf("rate limits must be positive when enabled")
	}

	return nil
}

// CacheAddr returns the cache backend address
func (c *Config) CacheAddr() string {
	return fmt.Sprintf("%s:%d", c.Cache.Host, c.Cache.Port)
}

// parseChunkAccess parses the authorized chunk access mapping from its
// JSON form, e.g. {"s3://bucket/prefix/": {"anonymous": true}}
func parseChunkAccess(raw string) (map[string]ChunkAccessPolicy, error) {
	if raw == "" {
		return map[string]ChunkAccessPolicy{}, nil
	}

	var access map[string]ChunkAccessPolicy
	if err := json.Unmarshal([]byte(raw), &access); err != nil {
		return nil, fmt.Errorf("invalid JSON in MULTIDIM_AUTHORIZED_CHUNK_ACCESS: %w", err)
	}
	return access, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
