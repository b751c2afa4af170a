package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/kennel/pkg/backend"
	"github.com/platinummonkey/kennel/pkg/contextkeys"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/data"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/middleware"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/schema"
	"github.com/platinummonkey/kennel/pkg/settings"
	"github.com/platinummonkey/kennel/pkg/storage"
)

// DefaultMaxBodyBytes bounds request bodies, imports included
const DefaultMaxBodyBytes = 32 << 20

// Services are the domain services the API serves
type Services struct {
	Backends    *backend.Service
	Credentials *credentials.Service
	Schemas     *schema.Registry
	Settings    *settings.Store
	Data        *data.Store
}

// Options configures the server
type Options struct {
	Version string
	// BaseDomain enables addressing backends by host
	BaseDomain string
	// RestrictBackendCreate lets only superdogs create backends
	RestrictBackendCreate bool
	CORSOrigins           []string
	MaxBodyBytes          int64
	// ExportSink receives exports written to object storage
	ExportSink storage.Sink

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Limiter limits anonymous callers, AuthenticatedLimiter authenticated
	// ones. No rate limiting when Limiter is nil.
	Limiter              middleware.Limiter
	AuthenticatedLimiter middleware.Limiter
	// LoginLimiter limits login attempts per client address
	LoginLimiter middleware.Limiter
}

// Server represents our API server
type Server struct {
	services Services
	opts     Options
	router   *mux.Router
	handler  http.Handler
}

// NewServer creates a new API server
func NewServer(services Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		services: services,
		opts:     opts,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()

	var h http.Handler = s.router
	if len(opts.CORSOrigins) > 0 {
		h = httputil.CORSMiddleware(opts.CORSOrigins)(h)
	}
	s.handler = otelhttp.NewHandler(h, "kennel")
	return s
}

// Router exposes the router so that callers can mount more routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) tenantConfig() middleware.TenantConfig {
	return middleware.TenantConfig{
		RootTenant: s.services.Credentials.RootTenant(),
		BaseDomain: s.opts.BaseDomain,
	}
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(s.opts.Logger))
	s.router.Use(httputil.RecoveryMiddleware)
	if s.opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}
	s.router.Use(httputil.MaxBytesMiddleware(s.opts.MaxBodyBytes))
	s.router.Use(middleware.TenantMiddleware(s.services.Backends, s.tenantConfig()))
	s.router.Use(middleware.NewAuthMiddleware(s.services.Credentials).Handler)
	if s.opts.Limiter != nil {
		s.router.Use(middleware.NewRateLimitMiddleware(s.opts.AuthenticatedLimiter, s.opts.Limiter).Handler)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteDomainError(w, r, errs.NotFound("path [%s] not found", r.URL.Path))
	})
	s.router.HandleFunc("/", s.ping).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/1").Subrouter()
	NewBackendHandlers(s.services.Backends, s.opts.RestrictBackendCreate).RegisterRoutes(v1)
	NewCredentialsHandlers(s.services.Credentials, s.opts.LoginLimiter).RegisterRoutes(v1)
	NewSchemaHandlers(s.services.Schemas).RegisterRoutes(v1)
	NewSettingsHandlers(s.services.Settings, s.services.Credentials).RegisterRoutes(v1)
	NewDataHandlers(s.services.Data, s.opts.ExportSink).RegisterRoutes(v1)
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, PingResponse{
		Success: true,
		Service: "kennel",
		Version: s.opts.Version,
		Backend: contextkeys.GetTenant(r.Context()),
	})
}

// subject returns the caller of a request
func subject(r *http.Request) (tenantID string, identity *middleware.Identity) {
	identity = middleware.GetIdentity(r)
	return identity.Tenant, identity
}
