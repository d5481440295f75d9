package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration; an empty URL disables the shared cache tier
	Redis RedisConfig

	// Role defaults cache configuration
	Cache cache.Config

	// Permission catalog configuration
	Catalog CatalogConfig

	// Rate limit applied to mutating endpoints
	RateLimit RateLimitConfig

	// Audit trail configuration
	Audit AuditConfig

	// Stale override scanner configuration
	Scanner ScannerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// Options converts the settings for cache.NewRedisClient
func (c RedisConfig) Options() cache.RedisOptions {
	return cache.RedisOptions{
		URL:        c.URL,
		Password:   c.Password,
		DB:         c.DB,
		MaxRetries: c.MaxRetries,
		PoolSize:   c.PoolSize,
	}
}

// CatalogConfig points at an optional catalog file. Without a path the
// embedded catalog is used.
type CatalogConfig struct {
	Path  string
	Watch bool
}

// RateLimitConfig holds the mutation rate limit
type RateLimitConfig struct {
	Enabled bool
	middleware.RateLimitConfig
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Retention time.Duration
	// Mirror events to the structured log as well as the database
	LogEvents bool
}

// ScannerConfig holds the stale override scanner settings
type ScannerConfig struct {
	Schedule string
	// Prune removes stale keys from stored overrides instead of only
	// reporting them
	Prune bool
	// AuditCleanupSchedule runs audit retention cleanup; empty disables it
	AuditCleanupSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// OTel converts the settings for observability.InitOTel
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
	}
}

// ClientConfig holds the settings of the command line client
type ClientConfig struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Catalog:       loadCatalogConfig(),
		RateLimit:     loadRateLimitConfig(),
		Audit:         loadAuditConfig(),
		Scanner:       loadScannerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadClientConfig loads the command line client settings
func LoadClientConfig() ClientConfig {
	return ClientConfig{
		APIURL:  getEnv("WARDEN_API_URL", "http://localhost:8080/api/v1"),
		Token:   getEnv("WARDEN_TOKEN", ""),
		Timeout: getEnvDuration("WARDEN_CLIENT_TIMEOUT", 30*time.Second),
	}
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
		Port:            getEnv("WARDEN_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("WARDEN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("WARDEN_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("WARDEN_DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("WARDEN_DATABASE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("WARDEN_DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("WARDEN_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("WARDEN_REDIS_URL", ""),
		Password:   getEnv("WARDEN_REDIS_PASSWORD", ""),
		DB:         getEnvInt("WARDEN_REDIS_DB", 0),
		MaxRetries: getEnvInt("WARDEN_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("WARDEN_REDIS_POOL_SIZE", 10),
	}
}

// loadCacheConfig starts from the cache defaults and applies overrides
func loadCacheConfig() cache.Config {
	cfg := cache.DefaultConfig()

	if size := getEnvInt("WARDEN_L1_CACHE_SIZE", 0); size > 0 {
		cfg.L1Size = size
	}
	if ttl := getEnvDuration("WARDEN_L1_CACHE_TTL", 0); ttl > 0 {
		cfg.L1TTL = ttl
	}
	if ttl := getEnvDuration("WARDEN_REDIS_CACHE_TTL", 0); ttl > 0 {
		cfg.RedisTTL = ttl
	}
	if prefix := getEnv("WARDEN_CACHE_KEY_PREFIX", ""); prefix != "" {
		cfg.KeyPrefix = prefix
	}

	return cfg
}

func loadCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Path:  getEnv("WARDEN_CATALOG_PATH", ""),
		Watch: getEnvBool("WARDEN_CATALOG_WATCH", false),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	defaults := middleware.DefaultRateLimitConfig()
	return RateLimitConfig{
		Enabled: getEnvBool("WARDEN_RATE_LIMIT_ENABLED", true),
		RateLimitConfig: middleware.RateLimitConfig{
			RequestsPerWindow: getEnvInt("WARDEN_RATE_LIMIT_REQUESTS", defaults.RequestsPerWindow),
			WindowDuration:    getEnvDuration("WARDEN_RATE_LIMIT_WINDOW", defaults.WindowDuration),
		},
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Retention: getEnvDuration("WARDEN_AUDIT_RETENTION", 90*24*time.Hour),
		LogEvents: getEnvBool("WARDEN_AUDIT_LOG_EVENTS", true),
	}
}

func loadScannerConfig() ScannerConfig {
	return ScannerConfig{
		Schedule:             getEnv("WARDEN_SCANNER_SCHEDULE", "@hourly"),
		Prune:                getEnvBool("WARDEN_SCANNER_PRUNE", false),
		AuditCleanupSchedule: getEnv("WARDEN_AUDIT_CLEANUP_SCHEDULE", "@daily"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("WARDEN_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("WARDEN_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("WARDEN_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("WARDEN_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("WARDEN_OTEL_SERVICE_NAME", "warden"),
		OTelServiceVersion: getEnv("WARDEN_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("WARDEN_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("max idle connections (%d) exceeds max open connections (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Cache.L1Size <= 0 {
		return fmt.Errorf("L1 cache size must be positive")
	}

	if c.Catalog.Watch && c.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required when catalog watching is enabled")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
	}

	if c.Audit.Retention < 24*time.Hour {
		return fmt.Errorf("audit retention must be at least 24h, got %s", c.Audit.Retention)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
