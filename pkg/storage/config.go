package storage

import "time"

// Config for the cache and export adapters
type Config struct {
	// S3 export sink
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Filesystem export sink, used when no S3 bucket is configured
	ExportDir string

	// Redis settings cache
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	RedisKeyPrefix  string

	// Cache TTLs per cache name; DefaultCacheTTL is used when absent
	CacheTTL        map[string]time.Duration
	DefaultCacheTTL time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		S3Region:        "us-east-1",
		ExportDir:       "/tmp/kennel/exports",
		RedisDB:         0,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
		RedisKeyPrefix:  "kennel:",
		CacheTTL: map[string]time.Duration{
			"settings": 30 * time.Second,
		},
		DefaultCacheTTL: 30 * time.Second,
	}
}

// TTL returns the TTL configured for a cache name.
func (c Config) TTL(cache string) time.Duration {
	if ttl, ok := c.CacheTTL[cache]; ok && ttl > 0 {
		return ttl
	}
	return c.DefaultCacheTTL
}
