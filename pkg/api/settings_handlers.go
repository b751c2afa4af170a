package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/settings"
)

// SettingsHandlers handles backend settings requests. Settings are
// administrator only.
type SettingsHandlers struct {
	settings    *settings.Store
	credentials *credentials.Service
}

// NewSettingsHandlers creates a new SettingsHandlers
func NewSettingsHandlers(st *settings.Store, creds *credentials.Service) *SettingsHandlers {
	return &SettingsHandlers{settings: st, credentials: creds}
}

// RegisterRoutes registers settings routes
func (h *SettingsHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/settings/{id}", h.GetSettings).Methods(http.MethodGet)
	router.HandleFunc("/settings/{id}", h.PutSettings).Methods(http.MethodPut)
	router.HandleFunc("/settings/{id}", h.DeleteSettings).Methods(http.MethodDelete)
}

func requireAdmin(s acl.Subject) error {
	if s.Anonymous {
		return errs.Unauthorized(errs.CodeInvalidCredentials, "authentication required")
	}
	if !s.IsAdmin() {
		return errs.Forbidden(errs.CodeForbidden, "only administrators can manage settings")
	}
	return nil
}

// managed rejects writes to settings owned by the schema registry
func managed(id string) error {
	if id == settings.DataACLID {
		return errs.Forbidden(errs.CodeForbidden, "settings [%s] are managed through schemas", id)
	}
	return nil
}

// GetSettings returns one settings document. Credentials settings are
// returned with their defaults.
func (h *SettingsHandlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	if err := requireAdmin(identity.Subject()); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if id == settings.CredentialsID {
		cs, err := h.credentials.Settings(r.Context(), tenantID)
		if err != nil {
			httputil.WriteDomainError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, cs)
		return
	}
	raw, err := h.settings.GetRaw(r.Context(), tenantID, id)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, raw)
}

// PutSettings stores one settings document
func (h *SettingsHandlers) PutSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	actor := identity.Subject()
	if err := requireAdmin(actor); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := managed(id); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteDomainError(w, r, errs.InvalidParameter("failed to read settings: %v", err))
		return
	}

	if id == settings.CredentialsID {
		_, err = h.credentials.PutSettings(r.Context(), actor, tenantID, body)
	} else {
		err = h.settings.PutRaw(r.Context(), tenantID, id, body)
	}
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, false, "/1", "settings", id, 0)
}

// DeleteSettings removes one settings document
func (h *SettingsHandlers) DeleteSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	if err := requireAdmin(identity.Subject()); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := managed(id); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	if err := h.settings.Delete(r.Context(), tenantID, id); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSuccess(w)
}
