package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/errs"
)

func TestWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantBody   string
	}{
		{"success", func(w http.ResponseWriter) { WriteSuccess(w, map[string]string{"id": "fido"}) }, http.StatusOK, `{"id":"fido"}`},
		{"created", func(w http.ResponseWriter) { WriteCreated(w, map[string]string{"id": "fido"}) }, http.StatusCreated, `{"id":"fido"}`},
		{"message", func(w http.ResponseWriter) { WriteErrorMessage(w, http.StatusNotFound, "no dog") }, http.StatusNotFound, `{"error":"no dog"}`},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad size") }, http.StatusBadRequest, `{"error":"bad size","code":"invalid-parameter"}`},
		{"too many", func(w http.ResponseWriter) { WriteTooManyRequests(w, "slow down") }, http.StatusTooManyRequests, `{"error":"slow down"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			tt.write(w)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"validation", errs.InvalidParameter("bad [x]"), http.StatusBadRequest, errs.CodeInvalidParameter, "bad [x]"},
		{"unauthorized", errs.Unauthorized(errs.CodeInvalidCredentials, "nope"), http.StatusUnauthorized, errs.CodeInvalidCredentials, "nope"},
		{"forbidden", errs.Forbidden(errs.CodeLastSuperadmin, "keep one"), http.StatusForbidden, errs.CodeLastSuperadmin, "keep one"},
		{"not found", errs.NotFound("no dog"), http.StatusNotFound, errs.CodeNotFound, "no dog"},
		{"conflict", errs.Conflict(errs.CodeVersionConflict, "stale"), http.StatusConflict, errs.CodeVersionConflict, "stale"},
		{"internal hides cause", errs.Internal(errors.New("db password leaked"), "failed to read"), http.StatusInternalServerError, errs.CodeInternal, "failed to read"},
		{"untagged", errors.New("boom"), http.StatusInternalServerError, errs.CodeInternal, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/1/data/dog", nil)

			WriteDomainError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMsg, body.Error)
			assert.NotContains(t, w.Body.String(), "leaked")
		})
	}
}

func TestWriteDomainErrorChallenges(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/1/login", nil)

	WriteDomainError(w, r, errs.Unauthorized(errs.CodeInvalidCredentials, "invalid credentials"))

	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")
}
