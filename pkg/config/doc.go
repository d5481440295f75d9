// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for everything except the database URL.
//
// # Configuration Structure
//
// Server settings:
//
//	WARDEN_HOST="0.0.0.0"
//	WARDEN_PORT="8080"
//	WARDEN_HEALTH_PORT="9090"
//	WARDEN_READ_TIMEOUT="15s"
//	WARDEN_WRITE_TIMEOUT="15s"
//
// Database and cache settings:
//
//	WARDEN_DATABASE_URL="postgres://localhost/warden"
//	WARDEN_DATABASE_MAX_OPEN_CONNS="20"
//	WARDEN_REDIS_URL="redis://localhost:6379"  # empty keeps the role cache in-process
//	WARDEN_L1_CACHE_SIZE="1024"
//	WARDEN_L1_CACHE_TTL="5s"
//	WARDEN_REDIS_CACHE_TTL="10m"
//
// Permission catalog:
//
//	WARDEN_CATALOG_PATH="/etc/warden/catalog.yaml"  # empty uses the embedded catalog
//	WARDEN_CATALOG_WATCH="true"
//
// Rate limiting, audit and the stale override scanner:
//
//	WARDEN_RATE_LIMIT_REQUESTS="60"
//	WARDEN_RATE_LIMIT_WINDOW="1m"
//	WARDEN_AUDIT_RETENTION="2160h"
//	WARDEN_SCANNER_SCHEDULE="@hourly"
//	WARDEN_SCANNER_PRUNE="false"
//
// Observability settings:
//
//	WARDEN_LOG_LEVEL="info"  # debug, info, warn, error
//	WARDEN_METRICS_ENABLED="true"
//	WARDEN_OTEL_ENABLED="true"
//	WARDEN_OTEL_ENDPOINT="otel-collector:4317"
//
// The command line client reads WARDEN_API_URL and WARDEN_TOKEN through
// LoadClientConfig.
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/cache: Uses cache configuration
//   - pkg/observability: Uses observability configuration
package config
