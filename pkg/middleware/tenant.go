package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/platinummonkey/kennel/pkg/contextkeys"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/tenant"
)

// BackendHeader names the backend a request is addressed to
const BackendHeader = "X-Kennel-Backend"

// TenantChecker reports whether a backend exists
type TenantChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// TenantConfig configures backend resolution
type TenantConfig struct {
	// RootTenant is used when the request names no backend
	RootTenant string
	// BaseDomain enables addressing a backend by host, as in
	// mybackend.<BaseDomain>
	BaseDomain string
}

// ResolveTenant returns the backend a request is addressed to: the backend
// header, else the host label under the base domain, else the root tenant.
func ResolveTenant(r *http.Request, cfg TenantConfig) string {
	if id := strings.TrimSpace(r.Header.Get(BackendHeader)); id != "" {
		return id
	}
	if cfg.BaseDomain != "" {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		host = strings.ToLower(host)
		suffix := "." + strings.ToLower(cfg.BaseDomain)
		if strings.HasSuffix(host, suffix) {
			labels := strings.Split(strings.TrimSuffix(host, suffix), ".")
			return labels[len(labels)-1]
		}
	}
	return cfg.RootTenant
}

// TenantMiddleware resolves the addressed backend and rejects unknown ones
func TenantMiddleware(checker TenantChecker, cfg TenantConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ResolveTenant(r, cfg)
			if id != cfg.RootTenant {
				if !tenant.IsValid(id) {
					httputil.WriteDomainError(w, r, errs.NotFound("backend [%s] not found", id))
					return
				}
				ok, err := checker.Exists(r.Context(), id)
				if err != nil {
					httputil.WriteDomainError(w, r, err)
					return
				}
				if !ok {
					httputil.WriteDomainError(w, r, errs.NotFound("backend [%s] not found", id))
					return
				}
			}
			ctx := contextkeys.WithTenant(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
