package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/storage"
)

// Engine kinds
const (
	EngineMemory   = "memory"
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Engine configuration
	Engine EngineConfig

	// Storage configuration
	Storage storage.Config

	// Credentials configuration
	Credentials CredentialsConfig

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
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// BaseDomain enables <backend>.<BaseDomain> addressing
	BaseDomain string
	// RestrictBackendCreate lets only superdogs create backends
	RestrictBackendCreate bool
	CORSOrigins           []string

	RateLimitEnabled bool
}

// EngineConfig selects and tunes the document engine
type EngineConfig struct {
	Type string
	DSN  string
	// Timeout bounds every engine call
	Timeout         time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// CredentialsConfig holds the root tenant and janitor settings
type CredentialsConfig struct {
	RootTenant       string
	SuperdogUsername string
	SuperdogPassword string
	SuperdogEmail    string
	// JanitorSchedule is a cron spec, empty disables the janitor
	JanitorSchedule    string
	JanitorConcurrency int
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
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Engine:        loadEngineConfig(),
		Storage:       loadStorageConfig(),
		Credentials:   loadCredentialsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:                  getEnv("KENNEL_HOST", "0.0.0.0"),
		Port:                  getEnv("KENNEL_PORT", "8080"),
		ReadTimeout:           getEnvDuration("KENNEL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:          getEnvDuration("KENNEL_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:           getEnvDuration("KENNEL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:       getEnvDuration("KENNEL_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:          getEnvInt64("KENNEL_MAX_BODY_BYTES", 32<<20),
		HealthPort:            getEnv("KENNEL_HEALTH_PORT", "9090"),
		BaseDomain:            getEnv("KENNEL_BASE_DOMAIN", ""),
		RestrictBackendCreate: getEnvBool("KENNEL_RESTRICT_BACKEND_CREATE", false),
		CORSOrigins:           getEnvList("KENNEL_CORS_ORIGINS"),
		RateLimitEnabled:      getEnvBool("KENNEL_RATE_LIMIT_ENABLED", true),
	}
}

// loadEngineConfig loads engine configuration from environment
func loadEngineConfig() EngineConfig {
	return EngineConfig{
		Type:            strings.ToLower(getEnv("KENNEL_ENGINE", EngineMemory)),
		DSN:             getEnv("KENNEL_ENGINE_DSN", ""),
		Timeout:         getEnvDuration("KENNEL_ENGINE_TIMEOUT", 10*time.Second),
		MaxOpenConns:    getEnvInt("KENNEL_ENGINE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("KENNEL_ENGINE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("KENNEL_ENGINE_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// S3 export sink
	if s3Endpoint := getEnv("KENNEL_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("KENNEL_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("KENNEL_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("KENNEL_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("KENNEL_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	cfg.S3UsePathStyle = getEnvBool("KENNEL_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)
	if exportDir := getEnv("KENNEL_EXPORT_DIR", ""); exportDir != "" {
		cfg.ExportDir = exportDir
	}

	// Redis settings cache
	if redisURL := getEnv("KENNEL_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("KENNEL_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("KENNEL_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("KENNEL_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("KENNEL_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache TTL
	if ttl := getEnvDuration("KENNEL_SETTINGS_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL["settings"] = ttl
	}

	return cfg
}

// loadCredentialsConfig loads the root tenant configuration from environment
func loadCredentialsConfig() CredentialsConfig {
	return CredentialsConfig{
		RootTenant:         getEnv("KENNEL_ROOT_BACKEND", "api"),
		SuperdogUsername:   getEnv("KENNEL_SUPERDOG_USERNAME", ""),
		SuperdogPassword:   getEnv("KENNEL_SUPERDOG_PASSWORD", ""),
		SuperdogEmail:      getEnv("KENNEL_SUPERDOG_EMAIL", ""),
		JanitorSchedule:    getEnv("KENNEL_JANITOR_SCHEDULE", "@every 10m"),
		JanitorConcurrency: getEnvInt("KENNEL_JANITOR_CONCURRENCY", 4),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("KENNEL_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("KENNEL_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("KENNEL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("KENNEL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("KENNEL_OTEL_SERVICE_NAME", "kennel"),
		OTelServiceVersion: getEnv("KENNEL_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("KENNEL_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("KENNEL_OTEL_SAMPLE_RATIO", 1),
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
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	// Validate engine config based on type
	switch c.Engine.Type {
	case EngineMemory:
	case EngineSQLite, EnginePostgres:
		if c.Engine.DSN == "" {
			return fmt.Errorf("engine DSN is required for %s engine", c.Engine.Type)
		}
	default:
		return fmt.Errorf("invalid engine type: %s (must be memory, sqlite, or postgres)", c.Engine.Type)
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine timeout must not be negative")
	}

	// Validate storage config
	if c.Storage.S3Bucket != "" && c.Storage.S3Region == "" {
		return fmt.Errorf("S3 region is required when an S3 bucket is configured")
	}

	// Validate credentials config
	if c.Credentials.RootTenant == "" || strings.ContainsAny(c.Credentials.RootTenant, "-. ") {
		return fmt.Errorf("invalid root backend: %q", c.Credentials.RootTenant)
	}
	if (c.Credentials.SuperdogUsername == "") != (c.Credentials.SuperdogPassword == "") {
		return fmt.Errorf("superdog username and password must be set together")
	}
	if c.Credentials.JanitorSchedule != "" && c.Credentials.JanitorConcurrency <= 0 {
		return fmt.Errorf("janitor concurrency must be positive")
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvList returns a comma separated environment variable
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
