package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/contextkeys"
)

type knownBackends map[string]bool

func (k knownBackends) Exists(ctx context.Context, id string) (bool, error) {
	return k[id], nil
}

type brokenBackends struct{}

func (brokenBackends) Exists(ctx context.Context, id string) (bool, error) {
	return false, assert.AnError
}

func TestResolveTenant(t *testing.T) {
	cfg := TenantConfig{RootTenant: "api", BaseDomain: "kennel.example.com"}
	tests := []struct {
		name   string
		host   string
		header string
		want   string
	}{
		{name: "no backend", host: "localhost:8080", want: "api"},
		{name: "header", host: "localhost", header: "acme", want: "acme"},
		{name: "host", host: "acme.kennel.example.com", want: "acme"},
		{name: "host with port", host: "acme.kennel.example.com:443", want: "acme"},
		{name: "header wins", host: "acme.kennel.example.com", header: "other", want: "other"},
		{name: "bare base domain", host: "kennel.example.com", want: "api"},
		{name: "nested host", host: "www.acme.kennel.example.com", want: "acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.Host = tt.host
			if tt.header != "" {
				r.Header.Set(BackendHeader, tt.header)
			}
			assert.Equal(t, tt.want, ResolveTenant(r, cfg))
		})
	}
}

func TestTenantMiddleware(t *testing.T) {
	var seen string
	h := TenantMiddleware(knownBackends{"acme": true}, TenantConfig{RootTenant: "api"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetTenant(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	do := func(backend string) *httptest.ResponseRecorder {
		seen = ""
		r := httptest.NewRequest("GET", "/1/data", nil)
		if backend != "" {
			r.Header.Set(BackendHeader, backend)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	w := do("")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "api", seen)

	w = do("acme")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", seen)

	w = do("ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "backend [ghost] not found")

	w = do("Not_Valid!")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, seen)
}

func TestTenantMiddlewareCheckerError(t *testing.T) {
	h := TenantMiddleware(brokenBackends{}, TenantConfig{RootTenant: "api"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(BackendHeader, "acme")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
