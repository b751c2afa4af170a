// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	KENNEL_HOST="0.0.0.0"
//	KENNEL_PORT="8080"
//	KENNEL_HEALTH_PORT="9090"
//	KENNEL_BASE_DOMAIN="kennel.example.com"
//	KENNEL_RESTRICT_BACKEND_CREATE="false"
//	KENNEL_CORS_ORIGINS="https://app.example.com"
//	KENNEL_RATE_LIMIT_ENABLED="true"
//
// Engine settings:
//
//	KENNEL_ENGINE="postgres"  # memory, sqlite, postgres
//	KENNEL_ENGINE_DSN="postgres://localhost/kennel?sslmode=disable"
//	KENNEL_ENGINE_TIMEOUT="10s"
//	KENNEL_ENGINE_MAX_OPEN_CONNS="20"
//
// Storage settings:
//
//	KENNEL_S3_BUCKET="kennel-exports"
//	KENNEL_S3_REGION="us-east-1"
//	KENNEL_EXPORT_DIR="/var/kennel/exports"  # used without a bucket
//	KENNEL_REDIS_URL="redis://localhost:6379/0"
//	KENNEL_SETTINGS_CACHE_TTL="30s"
//
// Credentials settings:
//
//	KENNEL_ROOT_BACKEND="api"
//	KENNEL_SUPERDOG_USERNAME="dog"
//	KENNEL_SUPERDOG_PASSWORD="..."
//	KENNEL_JANITOR_SCHEDULE="@every 10m"
//
// Observability settings:
//
//	KENNEL_LOG_LEVEL="info"  # debug, info, warn, error
//	KENNEL_METRICS_ENABLED="true"
//	KENNEL_OTEL_ENABLED="true"
//	KENNEL_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
