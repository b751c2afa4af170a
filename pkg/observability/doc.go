// Package observability carries kennel's logging, metrics, health and
// tracing plumbing.
//
// Logging is JSON via slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithTenant("acme").WithError(err).Warn("login failed")
//
// Request-scoped loggers travel in the context; FromContext tags records with
// the request id and tenant set by the HTTP middleware.
//
// Metrics are Prometheus collectors registered on a caller-supplied registry
// and served on /metrics. Engine calls, cache tiers, logins and lockouts are
// counted there.
//
// The HealthChecker aggregates named probes. The SQL document store is a
// required dependency; Redis only degrades readiness.
//
// InitOTel installs OTLP/gRPC exporters as the global trace and meter
// providers when enabled.
package observability
