package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the readiness report.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type dependency struct {
	check    CheckFunc
	required bool
}

// HealthChecker aggregates dependency probes. Required dependencies turn the
// report unhealthy when they fail; optional ones only degrade it.
type HealthChecker struct {
	version string
	mu      sync.RWMutex
	deps    map[string]dependency
}

// NewHealthChecker creates a checker reporting the given build version.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, deps: make(map[string]dependency)}
}

// Register adds a named probe.
func (h *HealthChecker) Register(name string, required bool, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps[name] = dependency{check: check, required: required}
}

// RegisterDatabase probes the SQL document store with a ping and a trivial
// query. The database is required.
func (h *HealthChecker) RegisterDatabase(name string, db *sql.DB) {
	h.Register(name, true, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var one int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	})
}

// RegisterRedis probes the shared cache. Redis is optional.
func (h *HealthChecker) RegisterRedis(name string, client *redis.Client) {
	h.Register(name, false, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// Check runs every probe concurrently and folds the results into one
// status.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	deps := make([]dependency, len(names))
	for i, name := range names {
		deps[i] = h.deps[name]
	}
	h.mu.RUnlock()

	results := make([]DependencyStatus, len(names))
	var g errgroup.Group
	for i := range deps {
		g.Go(func() error {
			results[i] = probe(ctx, deps[i])
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(names)),
	}
	for i, name := range names {
		switch results[i].Status {
		case StatusUnhealthy:
			status.Status = StatusUnhealthy
		case StatusDegraded:
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}
		status.Dependencies[name] = results[i]
	}
	return status
}

func probe(ctx context.Context, dep dependency) DependencyStatus {
	start := time.Now()
	err := dep.check(ctx)
	ds := DependencyStatus{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		ds.Message = err.Error()
		ds.Status = StatusDegraded
		if dep.required {
			ds.Status = StatusUnhealthy
		}
	}
	return ds
}

// Liveness always answers 200 while the process serves requests.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness answers 503 when a required dependency is down.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
}
