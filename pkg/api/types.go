package api

import (
	"net/http"
	"path"

	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/httputil"
)

// ObjectIDHeader carries the id of a saved object
const ObjectIDHeader = "X-Kennel-Object-Id"

// SuccessResponse acknowledges an operation without a result
type SuccessResponse struct {
	Success bool `json:"success"`
}

// SavedResponse describes a created or updated resource
type SavedResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Location string `json:"location"`
	Version  int64  `json:"version,omitempty"`
}

// DeletedResponse counts the resources a bulk delete removed
type DeletedResponse struct {
	Success      bool  `json:"success"`
	TotalDeleted int64 `json:"totalDeleted"`
}

// LoginResponse carries an issued access token
type LoginResponse struct {
	Success     bool             `json:"success"`
	AccessToken string           `json:"accessToken"`
	ExpiresIn   int64            `json:"expiresIn"`
	Credentials credentials.View `json:"credentials"`
}

// CredentialsSearchResponse is a page of credentials
type CredentialsSearchResponse struct {
	Total   int64              `json:"total"`
	Results []credentials.View `json:"results"`
}

// PasswordResetResponse carries a one time password reset code
type PasswordResetResponse struct {
	Success           bool   `json:"success"`
	ID                string `json:"id"`
	PasswordResetCode string `json:"passwordResetCode"`
}

// ExportResponse describes an export written to object storage
type ExportResponse struct {
	Success  bool   `json:"success"`
	Location string `json:"location"`
	Exported int    `json:"exported"`
}

// PingResponse identifies the service
type PingResponse struct {
	Success bool   `json:"success"`
	Service string `json:"service"`
	Version string `json:"version"`
	Backend string `json:"backendId"`
}

func writeSuccess(w http.ResponseWriter) {
	httputil.WriteSuccess(w, SuccessResponse{Success: true})
}

// writeSaved answers 201 for created resources, 200 otherwise
func writeSaved(w http.ResponseWriter, created bool, base, typ, id string, version int64) {
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	w.Header().Set(ObjectIDHeader, id)
	httputil.WriteJSON(w, status, SavedResponse{
		Success:  true,
		ID:       id,
		Type:     typ,
		Location: path.Join(base, typ, id),
		Version:  version,
	})
}
