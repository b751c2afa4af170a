// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, domain
// error responses, query parameter parsing and the generic middlewares.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, object)
//	httputil.WriteCreated(w, object)
//	httputil.WriteDomainError(w, r, err) // status derived from errs.Kind
//
// Errors are written as {"error": message, "code": machine-code}.
//
// # Request Parsing
//
//	var req credentials.CreateRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	from, err := httputil.ParseQueryInt(r, "from", 0)
//	strict, err := httputil.ParseQueryBool(r, "strict", false)
//
// Parse failures are errs invalid-parameter errors and can be handed to
// WriteDomainError as is.
//
// # Middleware
//
//	router.Use(httputil.RequestIDMiddleware)
//	router.Use(httputil.LoggingMiddleware(logger))
//	router.Use(httputil.RecoveryMiddleware)
//	router.Use(httputil.MaxBytesMiddleware(32 << 20))
//
// # Related Packages
//
//   - pkg/middleware: tenant resolution, authentication and rate limiting
package httputil
