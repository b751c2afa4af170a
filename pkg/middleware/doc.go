// Package middleware provides the kennel specific HTTP middleware: backend
// resolution, authentication and rate limiting.
//
// # Overview
//
// Every /1 request is addressed to one backend (tenant) and made by one
// caller, anonymous or authenticated. The middleware resolves both before a
// handler runs and stores them in the request context.
//
// # Middleware Components
//
// TenantMiddleware: resolves the backend from the X-Kennel-Backend header or
// the host, and answers 404 for unknown backends.
//
//	router.Use(middleware.TenantMiddleware(backends, middleware.TenantConfig{RootTenant: "api"}))
//
// AuthMiddleware: resolves the caller from a bearer token or basic
// credentials. Requests without an Authorization header are anonymous.
//
//	router.Use(middleware.NewAuthMiddleware(credentialsService).Handler)
//	identity := middleware.GetIdentity(r)
//	subject := identity.Subject()
//
// RateLimitMiddleware: token bucket limits in process, or fixed window limits
// shared through Redis.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.LoginRateLimitConfig(), "kennel:ratelimit:login")
//	router.Use(middleware.NewRateLimitMiddleware(nil, limiter).Handler)
//
// # Rate Limiting
//
// Anonymous: 100 req/min, 10 burst, per backend and client address
// Authenticated: 1000 req/min, 50 burst, per backend and credentials
// Login: 20 req/min, 5 burst, per backend and client address
//
// # Related Packages
//
//   - pkg/credentials: token and password checks
//   - pkg/contextkeys: context keys shared with handlers
package middleware
