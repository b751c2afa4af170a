package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/backend"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/httputil"
)

// CreateBackendRequest names a new backend and its first superadmin
type CreateBackendRequest struct {
	BackendID string `json:"backendId"`
	credentials.CreateRequest
}

// BackendHandlers handles backend lifecycle requests
type BackendHandlers struct {
	backends *backend.Service
	// restricted lets only superdogs create backends
	restricted bool
}

// NewBackendHandlers creates a new BackendHandlers
func NewBackendHandlers(backends *backend.Service, restricted bool) *BackendHandlers {
	return &BackendHandlers{backends: backends, restricted: restricted}
}

// RegisterRoutes registers backend routes
func (h *BackendHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/backend", h.CreateBackend).Methods(http.MethodPost)
	router.HandleFunc("/backend", h.ListBackends).Methods(http.MethodGet)
	router.HandleFunc("/backend", h.DeleteBackend).Methods(http.MethodDelete)
}

// CreateBackend creates a backend with its superadmin
func (h *BackendHandlers) CreateBackend(w http.ResponseWriter, r *http.Request) {
	_, identity := subject(r)
	if h.restricted && !identity.Subject().HasRole(acl.RoleSuperDog) {
		httputil.WriteDomainError(w, r, errs.Forbidden(errs.CodeForbidden, "only superdogs can create backends"))
		return
	}

	var req CreateBackendRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if _, err := h.backends.Create(r.Context(), req.BackendID, req.CreateRequest); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, true, "/1", "backend", req.BackendID, 0)
}

// ListBackends lists every backend with its superadmins
func (h *BackendHandlers) ListBackends(w http.ResponseWriter, r *http.Request) {
	_, identity := subject(r)
	backends, err := h.backends.List(r.Context(), identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"total":   len(backends),
		"results": backends,
	})
}

// DeleteBackend deletes the addressed backend with all its data
func (h *BackendHandlers) DeleteBackend(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	if err := h.backends.Delete(r.Context(), identity.Subject(), tenantID); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSuccess(w)
}
