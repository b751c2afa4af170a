package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/data"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/storage"
)

// SearchBody is the JSON body of POST /1/search
type SearchBody struct {
	Types   []string                 `json:"types,omitempty"`
	Q       string                   `json:"q,omitempty"`
	Terms   map[string][]interface{} `json:"terms,omitempty"`
	From    int                      `json:"from"`
	Size    int                      `json:"size"`
	Sort    []engine.SortField       `json:"sort,omitempty"`
	Refresh bool                     `json:"refresh,omitempty"`
}

// DataHandlers handles object requests
type DataHandlers struct {
	data *data.Store
	sink storage.Sink
}

// NewDataHandlers creates a new DataHandlers. sink may be nil when exports to
// object storage are not configured.
func NewDataHandlers(store *data.Store, sink storage.Sink) *DataHandlers {
	return &DataHandlers{data: store, sink: sink}
}

// RegisterRoutes registers data routes
func (h *DataHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/search", h.SearchBody).Methods(http.MethodPost)
	router.HandleFunc("/data", h.Search).Methods(http.MethodGet)

	router.HandleFunc("/data/{type}", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/data/{type}", h.Search).Methods(http.MethodGet)
	router.HandleFunc("/data/{type}", h.DeleteAll).Methods(http.MethodDelete)
	router.HandleFunc("/data/{type}/_export", h.Export).Methods(http.MethodPost)
	router.HandleFunc("/data/{type}/_import", h.Import).Methods(http.MethodPost)

	router.HandleFunc("/data/{type}/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/data/{type}/{id}", h.Save).Methods(http.MethodPut)
	router.HandleFunc("/data/{type}/{id}", h.Patch).Methods(http.MethodPatch)
	router.HandleFunc("/data/{type}/{id}", h.Delete).Methods(http.MethodDelete)

	router.HandleFunc("/data/{type}/{id}/{field}", h.GetField).Methods(http.MethodGet)
	router.HandleFunc("/data/{type}/{id}/{field}", h.SetField).Methods(http.MethodPut)
	router.HandleFunc("/data/{type}/{id}/{field}", h.DeleteField).Methods(http.MethodDelete)
}

// parseSort reads sort=field,-field where a leading dash sorts descending
func parseSort(r *http.Request) []engine.SortField {
	var sort []engine.SortField
	for _, f := range httputil.ParseQueryList(r, "sort") {
		if strings.HasPrefix(f, "-") {
			sort = append(sort, engine.SortField{Field: f[1:], Descending: true})
			continue
		}
		sort = append(sort, engine.SortField{Field: f})
	}
	return sort
}

func parseVersion(r *http.Request) (int64, error) {
	v, err := httputil.ParseQueryInt64(r, "version", 0)
	if err != nil || v < 0 {
		return 0, errs.InvalidParameter("version [%s] is invalid", r.URL.Query().Get("version"))
	}
	return v, nil
}

func decodePayload(r *http.Request) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := httputil.ParseJSON(r, &payload); err != nil {
		return nil, errs.InvalidParameter("object must be a JSON object: %v", err)
	}
	if payload == nil {
		return nil, errs.InvalidParameter("object must be a JSON object")
	}
	return payload, nil
}

// Search lists the objects of one or every type
func (h *DataHandlers) Search(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	req := data.SearchRequest{
		Q:    r.URL.Query().Get("q"),
		Sort: parseSort(r),
	}
	if typ := mux.Vars(r)["type"]; typ != "" {
		req.Types = []string{typ}
	}
	var err error
	if req.From, err = httputil.ParseQueryInt(r, "from", 0); err != nil {
		httputil.WriteBadRequest(w, "from must be a number")
		return
	}
	if req.Size, err = httputil.ParseQueryInt(r, "size", 0); err != nil {
		httputil.WriteBadRequest(w, "size must be a number")
		return
	}
	if req.Refresh, err = httputil.ParseQueryBool(r, "refresh", false); err != nil {
		httputil.WriteBadRequest(w, "refresh must be a boolean")
		return
	}
	h.search(w, r, tenantID, req, identity.Subject())
}

// SearchBody runs a search described by a JSON body
func (h *DataHandlers) SearchBody(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	var body SearchBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	h.search(w, r, tenantID, data.SearchRequest{
		Types:   body.Types,
		Q:       body.Q,
		Terms:   body.Terms,
		From:    body.From,
		Size:    body.Size,
		Sort:    body.Sort,
		Refresh: body.Refresh,
	}, identity.Subject())
}

func (h *DataHandlers) search(w http.ResponseWriter, r *http.Request, tenantID string, req data.SearchRequest, actor acl.Subject) {
	res, err := h.data.Search(r.Context(), tenantID, req, actor)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// Create stores a new object. The id comes from the schema id path, else the
// id parameter, else the engine.
func (h *DataHandlers) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	typ := mux.Vars(r)["type"]
	payload, err := decodePayload(r)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	o, err := h.data.Create(r.Context(), tenantID, typ, r.URL.Query().Get("id"), payload, identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, true, "/1/data", typ, o.ID, o.Version)
}

// DeleteAll deletes the objects of a type matching the q parameter
func (h *DataHandlers) DeleteAll(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	q := data.ParseQuery(r.URL.Query().Get("q"))
	n, err := h.data.DeleteAll(r.Context(), tenantID, mux.Vars(r)["type"], q, identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, DeletedResponse{Success: true, TotalDeleted: n})
}

// Get returns one object
func (h *DataHandlers) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	vars := mux.Vars(r)
	o, err := h.data.Get(r.Context(), tenantID, vars["type"], vars["id"], identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, o)
}

func (h *DataHandlers) updateRequest(r *http.Request) (data.UpdateRequest, error) {
	vars := mux.Vars(r)
	req := data.UpdateRequest{Type: vars["type"], ID: vars["id"]}
	var err error
	if req.Version, err = parseVersion(r); err != nil {
		return req, err
	}
	if req.Strict, err = httputil.ParseQueryBool(r, "strict", false); err != nil {
		return req, errs.InvalidParameter("strict must be a boolean")
	}
	req.Payload, err = decodePayload(r)
	return req, err
}

// Save updates an object, creating it when absent
func (h *DataHandlers) Save(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	req, err := h.updateRequest(r)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	o, created, err := h.data.Save(r.Context(), tenantID, req, identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, created, "/1/data", req.Type, o.ID, o.Version)
}

// Patch updates an existing object
func (h *DataHandlers) Patch(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	req, err := h.updateRequest(r)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	o, err := h.data.Update(r.Context(), tenantID, req, identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, false, "/1/data", req.Type, o.ID, o.Version)
}

// Delete deletes one object
func (h *DataHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	vars := mux.Vars(r)
	if err := h.data.Delete(r.Context(), tenantID, vars["type"], vars["id"], identity.Subject()); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSuccess(w)
}

// GetField returns one property of an object
func (h *DataHandlers) GetField(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	vars := mux.Vars(r)
	value, err := h.data.GetField(r.Context(), tenantID, vars["type"], vars["id"], vars["field"], identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, value)
}

// SetField replaces one property of an object with the JSON body
func (h *DataHandlers) SetField(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	vars := mux.Vars(r)
	version, err := parseVersion(r)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	var value interface{}
	if !httputil.ParseJSONOrError(w, r, &value) {
		return
	}
	o, err := h.data.SetField(r.Context(), tenantID, vars["type"], vars["id"], vars["field"], value, version, identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, false, "/1/data", vars["type"], o.ID, o.Version)
}

// DeleteField removes one property of an object
func (h *DataHandlers) DeleteField(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	vars := mux.Vars(r)
	version, err := parseVersion(r)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	o, err := h.data.DeleteField(r.Context(), tenantID, vars["type"], vars["id"], vars["field"], version, identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, false, "/1/data", vars["type"], o.ID, o.Version)
}

// trackingWriter records whether the response was started
type trackingWriter struct {
	http.ResponseWriter
	started bool
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.started = true
	return w.ResponseWriter.Write(b)
}

// Export streams the objects of a type matching q as NDJSON, or writes them
// to object storage with the bucket parameter
func (h *DataHandlers) Export(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	typ := mux.Vars(r)["type"]
	q := data.ParseQuery(r.URL.Query().Get("q"))

	toBucket, err := httputil.ParseQueryBool(r, "bucket", false)
	if err != nil {
		httputil.WriteBadRequest(w, "bucket must be a boolean")
		return
	}
	if toBucket {
		if h.sink == nil {
			httputil.WriteDomainError(w, r, errs.InvalidParameter("export storage is not configured"))
			return
		}
		location, n, err := h.data.ExportToBucket(r.Context(), tenantID, typ, q, identity.Subject(), h.sink, r.URL.Query().Get("key"))
		if err != nil {
			httputil.WriteDomainError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, ExportResponse{Success: true, Location: location, Exported: n})
		return
	}

	tw := &trackingWriter{ResponseWriter: w}
	w.Header().Set("Content-Type", data.NDJSONContentType)
	n, err := h.data.Export(r.Context(), tenantID, typ, q, identity.Subject(), tw)
	if err != nil {
		if !tw.started {
			w.Header().Del("Content-Type")
			httputil.WriteDomainError(w, r, err)
			return
		}
		observability.FromContext(r.Context()).WithError(err).WithField("exported", n).Error("export interrupted")
	}
}

// Import reads NDJSON objects from the body
func (h *DataHandlers) Import(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	preserveIDs, err := httputil.ParseQueryBool(r, "preserveIds", false)
	if err != nil {
		httputil.WriteBadRequest(w, "preserveIds must be a boolean")
		return
	}
	res, err := h.data.Import(r.Context(), tenantID, mux.Vars(r)["type"], r.Body, preserveIDs, identity.Subject())
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}
