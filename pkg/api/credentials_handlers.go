package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/middleware"
)

// meID addresses the credentials of the caller
const meID = "me"

// PasswordRequest carries a new password and, for resets, the reset code
type PasswordRequest struct {
	Password          string `json:"password"`
	PasswordResetCode string `json:"passwordResetCode,omitempty"`
}

// ForgotPasswordRequest names the credentials that forgot their password
type ForgotPasswordRequest struct {
	Username string `json:"username"`
}

// CredentialsHandlers handles credentials, login and logout requests
type CredentialsHandlers struct {
	credentials  *credentials.Service
	loginLimiter middleware.Limiter
}

// NewCredentialsHandlers creates a new CredentialsHandlers. loginLimiter may
// be nil.
func NewCredentialsHandlers(svc *credentials.Service, loginLimiter middleware.Limiter) *CredentialsHandlers {
	return &CredentialsHandlers{credentials: svc, loginLimiter: loginLimiter}
}

// RegisterRoutes registers credentials routes
func (h *CredentialsHandlers) RegisterRoutes(router *mux.Router) {
	var login http.Handler = http.HandlerFunc(h.Login)
	if h.loginLimiter != nil {
		login = middleware.NewRateLimitMiddleware(nil, h.loginLimiter).Handler(login)
	}
	router.Handle("/login", login).Methods(http.MethodGet, http.MethodPost).Name(middleware.RouteLogin)
	router.HandleFunc("/logout", h.Logout).Methods(http.MethodGet, http.MethodPost)

	router.HandleFunc("/credentials", h.CreateCredentials).Methods(http.MethodPost)
	router.HandleFunc("/credentials", h.SearchCredentials).Methods(http.MethodGet)
	router.HandleFunc("/credentials", h.DeleteAllCredentials).Methods(http.MethodDelete)
	router.HandleFunc("/credentials/forgotPassword", h.ForgotPassword).Methods(http.MethodPost)
	router.HandleFunc("/credentials/{id}", h.GetCredentials).Methods(http.MethodGet)
	router.HandleFunc("/credentials/{id}", h.UpdateCredentials).Methods(http.MethodPut)
	router.HandleFunc("/credentials/{id}", h.DeleteCredentials).Methods(http.MethodDelete)
	router.HandleFunc("/credentials/{id}/password", h.SetPassword).Methods(http.MethodPut).Name(middleware.RouteSetPassword)
	router.HandleFunc("/credentials/{id}/password", h.ResetPassword).Methods(http.MethodPost)
	router.HandleFunc("/credentials/{id}/password", h.RequestPasswordReset).Methods(http.MethodDelete)
}

// targetID resolves the {id} path variable, "me" standing for the caller
func targetID(r *http.Request, identity *middleware.Identity) string {
	id := mux.Vars(r)["id"]
	if id == meID && identity.Authenticated() {
		return identity.Credentials.ID
	}
	return id
}

// Login issues an access token to basic credentials
func (h *CredentialsHandlers) Login(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := subject(r)
	username, password, ok := r.BasicAuth()
	if !ok {
		httputil.WriteDomainError(w, r, errs.Unauthorized(errs.CodeInvalidCredentials, "basic authorization required to login"))
		return
	}
	lifetime, err := httputil.ParseQueryInt64(r, "lifetime", 0)
	if err != nil || lifetime < 0 {
		httputil.WriteBadRequest(w, "lifetime must be a positive number of seconds")
		return
	}

	session, err := h.credentials.Login(r.Context(), tenantID, username, password, time.Duration(lifetime)*time.Second)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, LoginResponse{
		Success:     true,
		AccessToken: session.AccessToken,
		ExpiresIn:   session.ExpiresIn,
		Credentials: session.Credentials.View(),
	})
}

// Logout revokes the bearer token of the request
func (h *CredentialsHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	if identity.Method != middleware.AuthBearer {
		httputil.WriteDomainError(w, r, errs.Unauthorized(errs.CodeInvalidCredentials, "bearer access token required to logout"))
		return
	}
	if err := h.credentials.Logout(r.Context(), tenantID, identity.Token); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSuccess(w)
}

// CreateCredentials signs up or creates credentials
func (h *CredentialsHandlers) CreateCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	var req credentials.CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	c, err := h.credentials.Create(r.Context(), identity.Subject(), tenantID, req)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, true, "/1", "credentials", c.ID, c.Version)
}

// SearchCredentials lists credentials filtered by username, role and status
func (h *CredentialsHandlers) SearchCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	req := credentials.SearchRequest{
		Username: r.URL.Query().Get("username"),
		Role:     r.URL.Query().Get("role"),
	}
	if r.URL.Query().Has("enabled") {
		enabled, err := httputil.ParseQueryBool(r, "enabled", false)
		if err != nil {
			httputil.WriteBadRequest(w, "enabled must be a boolean")
			return
		}
		req.Enabled = &enabled
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

	res, err := h.credentials.Search(r.Context(), identity.Subject(), tenantID, req)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	out := CredentialsSearchResponse{Total: res.Total, Results: make([]credentials.View, 0, len(res.Results))}
	for _, c := range res.Results {
		out.Results = append(out.Results, c.View())
	}
	httputil.WriteSuccess(w, out)
}

// DeleteAllCredentials deletes every credential but the superadmins
func (h *CredentialsHandlers) DeleteAllCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	n, err := h.credentials.DeleteAll(r.Context(), identity.Subject(), tenantID)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, DeletedResponse{Success: true, TotalDeleted: n})
}

// GetCredentials returns one credential
func (h *CredentialsHandlers) GetCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	c, err := h.credentials.Get(r.Context(), identity.Subject(), tenantID, targetID(r, identity))
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, c.View())
}

// UpdateCredentials changes the fields of one credential
func (h *CredentialsHandlers) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	var req credentials.UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	version, err := httputil.ParseQueryInt64(r, "version", req.Version)
	if err != nil {
		httputil.WriteBadRequest(w, "version must be a number")
		return
	}
	req.Version = version

	c, err := h.credentials.Update(r.Context(), identity.Subject(), tenantID, targetID(r, identity), req)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSaved(w, false, "/1", "credentials", c.ID, c.Version)
}

// DeleteCredentials deletes one credential
func (h *CredentialsHandlers) DeleteCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	if err := h.credentials.Delete(r.Context(), identity.Subject(), tenantID, targetID(r, identity)); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSuccess(w)
}

// SetPassword changes a password. Callers changing their own password prove
// the current one with basic authorization.
func (h *CredentialsHandlers) SetPassword(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	var req PasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	id := targetID(r, identity)
	verified := identity.Method == middleware.AuthBasic && identity.Authenticated() && identity.Credentials.ID == id

	err := h.credentials.SetPassword(r.Context(), identity.Subject(), tenantID, id, credentials.SetPasswordRequest{
		Password:         req.Password,
		PasswordVerified: verified,
	})
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSuccess(w)
}

// ResetPassword chooses a new password with a reset code
func (h *CredentialsHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := subject(r)
	var req PasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.PasswordResetCode == "" {
		httputil.WriteBadRequest(w, "passwordResetCode is required")
		return
	}
	if err := h.credentials.ResetPassword(r.Context(), tenantID, mux.Vars(r)["id"], req.PasswordResetCode, req.Password); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSuccess(w)
}

// RequestPasswordReset clears a password and returns a reset code
func (h *CredentialsHandlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	tenantID, identity := subject(r)
	id := targetID(r, identity)
	code, err := h.credentials.RequestPasswordReset(r.Context(), identity.Subject(), tenantID, id)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, PasswordResetResponse{Success: true, ID: id, PasswordResetCode: code})
}

// ForgotPassword mails a reset code to the owner of a username
func (h *CredentialsHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := subject(r)
	var req ForgotPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.credentials.SendPasswordResetEmail(r.Context(), tenantID, req.Username); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeSuccess(w)
}
