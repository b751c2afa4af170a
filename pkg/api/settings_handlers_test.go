package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsAreAdminOnly(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.signUp(t, "fred")

	w := ts.do(t, call{method: "GET", path: "/1/settings/credentials", backend: "acme"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, as("fred", "GET", "/1/settings/credentials", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, as("fred", "PUT", "/1/settings/theme", map[string]string{"color": "red"}))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCredentialsSettingsDefaults(t *testing.T) {
	ts := newTestServer(t, Options{})

	w := ts.do(t, as("boss", "GET", "/1/settings/credentials", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cs map[string]interface{}
	decode(t, w, &cs)
	assert.Equal(t, false, cs["guestSignUpEnabled"])

	w = ts.do(t, as("boss", "PUT", "/1/settings/credentials", map[string]interface{}{"guestSignUpEnabled": true}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, as("boss", "GET", "/1/settings/credentials", nil))
	decode(t, w, &cs)
	assert.Equal(t, true, cs["guestSignUpEnabled"])
}

func TestCustomSettings(t *testing.T) {
	ts := newTestServer(t, Options{})

	w := ts.do(t, as("boss", "GET", "/1/settings/theme", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, as("boss", "PUT", "/1/settings/theme", map[string]string{"color": "red"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var saved SavedResponse
	decode(t, w, &saved)
	assert.Equal(t, "/1/settings/theme", saved.Location)

	w = ts.do(t, as("boss", "GET", "/1/settings/theme", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"color": "red"}`, w.Body.String())

	w = ts.do(t, call{method: "PUT", path: "/1/settings/theme", backend: "acme", user: "boss", password: "secret-boss", raw: `"red"`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, as("boss", "DELETE", "/1/settings/theme", nil))
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, as("boss", "GET", "/1/settings/theme", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDataACLSettingsAreManaged(t *testing.T) {
	ts := newTestServer(t, Options{})
	require.Equal(t, http.StatusCreated, ts.do(t, as("boss", "PUT", "/1/schema/msg", msgSchema())).Code)

	w := ts.do(t, as("boss", "GET", "/1/settings/dataacl", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "msg")

	w = ts.do(t, as("boss", "PUT", "/1/settings/dataacl", map[string]interface{}{}))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, as("boss", "DELETE", "/1/settings/dataacl", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
