// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys shared between the HTTP middleware and the
// handlers must be defined here. This prevents typos, documents dependencies,
// and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/kennel/pkg/contextkeys"
//	ctx = contextkeys.WithTenant(ctx, "mybackend")
//	tenantID := contextkeys.GetTenant(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// TenantKey contains the backend id a request is addressed to
	// Set by: middleware.TenantMiddleware (pkg/middleware/tenant.go)
	// Required by: every /1 endpoint
	// Type: string
	TenantKey Key = "tenant"

	// IdentityKey contains the authenticated caller
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: every /1 endpoint, rate limiting
	// Type: *middleware.Identity
	IdentityKey Key = "identity"
)

// WithTenant adds the addressed backend id to the context
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantKey, tenantID)
}

// GetTenant retrieves the addressed backend id from context
func GetTenant(ctx context.Context) string {
	if tenantID, ok := ctx.Value(TenantKey).(string); ok {
		return tenantID
	}
	return ""
}

// WithIdentity adds the authenticated caller to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}
