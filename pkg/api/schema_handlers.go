package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/schema"
)

// SchemaHandlers handles schema registry requests
type SchemaHandlers struct {
	schemas *schema.Registry
}

// NewSchemaHandlers creates a new SchemaHandlers
func NewSchemaHandlers(schemas *schema.Registry) *SchemaHandlers {
	return &SchemaHandlers{schemas: schemas}
}

// RegisterRoutes registers schema routes
func (h *SchemaHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/schema", h.GetAllSchemas).Methods(http.MethodGet)
	router.HandleFunc("/schema/{type}", h.GetSchema).Methods(http.MethodGet)
	router.HandleFunc("/schema/{type}", h.SetSchema).Methods(http.MethodPut, http.MethodPost)
	router.HandleFunc("/schema/{type}", h.DeleteSchema).Methods(http.MethodDelete)
}

// GetAllSchemas returns every schema of the backend keyed by type
func (h *SchemaHandlers) GetAllSchemas(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := subject(r)
	schemas, err := h.schemas.GetAll(r.Context(), tenantID)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	out := make(map[string]interface{}, len(schemas))
	for _, s := range schemas {
		for name, def := range s.Definition() {
			out[name] = def
		}
	}
	httputil.WriteSuccess(w, out)
}

// GetSchema returns the schema of one type
func (h *SchemaHandlers) GetSchema(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := subject(r)
	s, err := h.schemas.Get(r.Context(), tenantID, mux.Vars(r)["type"])
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, s)
}

// SetSchema creates or updates the schema of a type
func (h *SchemaHandlers) SetSchema(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	name := mux.Vars(r)["type"]
	// reserved names fail before the body is even looked at
	if err := schema.CheckName(name); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteDomainError(w, r, errs.InvalidParameter("failed to read schema: %v", err))
		return
	}
	s, err := schema.Parse(name, body)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	created, err := h.schemas.Set(r.Context(), tenantID, identity.Subject(), s)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, created, "/1", "schema", name, 0)
}

// DeleteSchema deletes a type with all its objects
func (h *SchemaHandlers) DeleteSchema(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	if err := h.schemas.Delete(r.Context(), tenantID, identity.Subject(), mux.Vars(r)["type"]); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSuccess(w)
}
