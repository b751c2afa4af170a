package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/contextkeys"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/engine/memory"
	"github.com/platinummonkey/kennel/pkg/settings"
)

type authFixture struct {
	svc    *credentials.Service
	router *mux.Router
	seen   *Identity
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	ctx := context.Background()
	e := memory.New()
	st := settings.NewStore(e, settings.Options{})
	params := credentials.HashParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}
	svc := credentials.NewService(e, st, credentials.Options{HashParams: &params})
	for _, id := range []string{"api", "acme"} {
		require.NoError(t, credentials.InitIndex(ctx, e, id))
	}

	f := &authFixture{svc: svc, router: mux.NewRouter()}
	record := func(w http.ResponseWriter, r *http.Request) {
		f.seen = GetIdentity(r)
		w.WriteHeader(http.StatusOK)
	}
	f.router.HandleFunc("/1/data", record)
	f.router.HandleFunc("/1/login", record).Name(RouteLogin)
	f.router.HandleFunc("/1/credentials/{id}/password", record).Name(RouteSetPassword)
	f.router.Use(TenantMiddleware(existsAll{}, TenantConfig{RootTenant: "api"}))
	f.router.Use(NewAuthMiddleware(svc).Handler)
	return f
}

type existsAll struct{}

func (existsAll) Exists(ctx context.Context, id string) (bool, error) { return true, nil }

func (f *authFixture) do(r *http.Request) *httptest.ResponseRecorder {
	f.seen = nil
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func acmeRequest(method, path string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	r.Header.Set(BackendHeader, "acme")
	return r
}

func TestAuthMiddlewareAnonymous(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(acmeRequest("GET", "/1/data"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.seen.Authenticated())
	assert.Equal(t, "acme", f.seen.Tenant)
	assert.True(t, f.seen.Subject().Anonymous)
}

func TestAuthMiddlewareBasic(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.Bootstrap(context.Background(), "acme", credentials.CreateRequest{Username: "fred", Password: "secret-fred"})
	require.NoError(t, err)

	r := acmeRequest("GET", "/1/data")
	r.SetBasicAuth("fred", "secret-fred")
	w := f.do(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, AuthBasic, f.seen.Method)
	assert.Equal(t, "fred", f.seen.Credentials.Username)

	r = acmeRequest("GET", "/1/data")
	r.SetBasicAuth("fred", "wrong")
	w = f.do(r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, f.seen)
}

func TestAuthMiddlewareLoginSkipsBasic(t *testing.T) {
	f := newAuthFixture(t)

	r := acmeRequest("POST", "/1/login")
	r.SetBasicAuth("fred", "whatever")
	w := f.do(r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.seen.Authenticated())
}

func TestAuthMiddlewareBearer(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Bootstrap(ctx, "acme", credentials.CreateRequest{Username: "fred", Password: "secret-fred"})
	require.NoError(t, err)
	session, err := f.svc.Login(ctx, "acme", "fred", "secret-fred", 0)
	require.NoError(t, err)

	r := acmeRequest("GET", "/1/data")
	r.Header.Set("Authorization", "Bearer "+session.AccessToken)
	w := f.do(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, AuthBearer, f.seen.Method)
	assert.Equal(t, session.AccessToken, f.seen.Token)

	// a token of one backend does not open another
	r = httptest.NewRequest("GET", "/1/data", nil)
	r.Header.Set("Authorization", "Bearer "+session.AccessToken)
	w = f.do(r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareSuperdogReachesEveryBackend(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Bootstrap(ctx, "api", credentials.CreateRequest{Username: "dog", Password: "secret-dog", Roles: []string{acl.RoleSuperDog}})
	require.NoError(t, err)
	session, err := f.svc.Login(ctx, "api", "dog", "secret-dog", 0)
	require.NoError(t, err)

	r := acmeRequest("GET", "/1/data")
	r.Header.Set("Authorization", "Bearer "+session.AccessToken)
	w := f.do(r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", f.seen.Tenant)
	assert.True(t, f.seen.Subject().Bypass())
}

func TestAuthMiddlewarePasswordMustChange(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	admin, err := f.svc.Bootstrap(ctx, "acme", credentials.CreateRequest{Username: "boss", Password: "secret-boss", Roles: []string{acl.RoleSuperAdmin}})
	require.NoError(t, err)
	fred, err := f.svc.Bootstrap(ctx, "acme", credentials.CreateRequest{Username: "fred", Password: "secret-fred"})
	require.NoError(t, err)
	session, err := f.svc.Login(ctx, "acme", "fred", "secret-fred", 0)
	require.NoError(t, err)
	_, err = f.svc.RequestPasswordReset(ctx, admin.Subject(), "acme", fred.ID)
	require.NoError(t, err)

	// the reset revoked the session
	r := acmeRequest("GET", "/1/data")
	r.Header.Set("Authorization", "Bearer "+session.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, f.do(r).Code)
}

func TestAuthMiddlewareBadHeader(t *testing.T) {
	f := newAuthFixture(t)

	r := acmeRequest("GET", "/1/data")
	r.Header.Set("Authorization", "Token abc")

	assert.Equal(t, http.StatusUnauthorized, f.do(r).Code)
}

func TestRequireAuthenticated(t *testing.T) {
	h := RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	identity := &Identity{Credentials: &credentials.Credentials{ID: "c1"}}
	r = r.WithContext(contextkeys.WithIdentity(r.Context(), identity))
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
