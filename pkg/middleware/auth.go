package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/contextkeys"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/observability"
)

// Route names the authentication middleware treats specially
const (
	// RouteLogin checks basic credentials itself to issue a token
	RouteLogin = "login"
	// RouteSetPassword accepts credentials that must change their password
	RouteSetPassword = "setPassword"
)

// AuthMethod tells how a caller authenticated
type AuthMethod int

const (
	AuthNone AuthMethod = iota
	AuthBasic
	AuthBearer
)

// Identity is the authenticated caller of a request
type Identity struct {
	// Tenant is the addressed backend, not necessarily the backend of the
	// credentials for superdogs
	Tenant      string
	Credentials *credentials.Credentials
	Method      AuthMethod
	// Token is the bearer token the caller presented
	Token string
}

// Subject returns the acting subject for permission checks
func (i *Identity) Subject() acl.Subject {
	if i == nil || i.Credentials == nil {
		return acl.AnonymousSubject()
	}
	return i.Credentials.Subject()
}

// Authenticated reports whether the caller presented valid credentials
func (i *Identity) Authenticated() bool {
	return i != nil && i.Credentials != nil
}

// Authenticator checks basic credentials and bearer tokens
type Authenticator interface {
	Authenticate(ctx context.Context, tenantID, username, password string, opts credentials.AuthOptions) (*credentials.Credentials, error)
	ValidateToken(ctx context.Context, tenantID, token string, opts credentials.AuthOptions) (*credentials.Credentials, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	auth Authenticator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

// Handler resolves the caller from the Authorization header. Requests without
// one proceed anonymously; invalid credentials are rejected.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity := &Identity{Tenant: contextkeys.GetTenant(ctx)}
		route := routeName(r)
		opts := credentials.AuthOptions{AllowPasswordMustChange: route == RouteSetPassword}

		authHeader := r.Header.Get("Authorization")
		scheme, value, _ := strings.Cut(authHeader, " ")
		switch {
		case authHeader == "":
		case strings.EqualFold(scheme, "Bearer"):
			c, err := m.auth.ValidateToken(ctx, identity.Tenant, strings.TrimSpace(value), opts)
			if err != nil {
				httputil.WriteDomainError(w, r, err)
				return
			}
			identity.Credentials, identity.Method, identity.Token = c, AuthBearer, strings.TrimSpace(value)
		case strings.EqualFold(scheme, "Basic"):
			if route == RouteLogin {
				// login challenges the password itself
				break
			}
			username, password, ok := r.BasicAuth()
			if !ok {
				httputil.WriteDomainError(w, r, errs.Unauthorized(errs.CodeInvalidCredentials, "invalid basic authorization header"))
				return
			}
			c, err := m.auth.Authenticate(ctx, identity.Tenant, username, password, opts)
			if err != nil {
				httputil.WriteDomainError(w, r, err)
				return
			}
			identity.Credentials, identity.Method = c, AuthBasic
		default:
			httputil.WriteDomainError(w, r, errs.Unauthorized(errs.CodeInvalidCredentials, "invalid authorization header format"))
			return
		}

		ctx = contextkeys.WithIdentity(ctx, identity)
		if identity.Credentials != nil {
			ctx = observability.WithLogger(ctx, observability.GetLogger(ctx).WithField("credentials_id", identity.Credentials.ID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the caller from request. Requests that did not go
// through the middleware are anonymous.
func GetIdentity(r *http.Request) *Identity {
	if identity, ok := r.Context().Value(contextkeys.IdentityKey).(*Identity); ok && identity != nil {
		return identity
	}
	return &Identity{Tenant: contextkeys.GetTenant(r.Context())}
}

// RequireAuthenticated rejects anonymous callers
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetIdentity(r).Authenticated() {
			httputil.WriteDomainError(w, r, errs.Unauthorized(errs.CodeInvalidCredentials, "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
