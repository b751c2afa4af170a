package seed

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/backend"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/engine/memory"
	"github.com/platinummonkey/kennel/pkg/schema"
	"github.com/platinummonkey/kennel/pkg/settings"
)

const acmeManifest = `
backendId: acme
superadmin:
  username: boss
  password: secret-boss
credentialsSettings:
  guestSignUpEnabled: true
settings:
  theme:
    color: red
schemas:
  msg:
    _acl:
      user: [create, read, search, updateMine]
    body:
      _type: text
    topic:
      _type: string
credentials:
  - username: fred
    password: secret-fred
    email: fred@example.com
`

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	applier     *Applier
	credentials *credentials.Service
	schemas     *schema.Registry
	settings    *settings.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	e := memory.New()
	st := settings.NewStore(e, settings.Options{})
	creds := credentials.NewService(e, st, credentials.Options{
		HashParams: &credentials.HashParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8},
	})
	schemas := schema.NewRegistry(e, st)
	backends := backend.NewService(e, creds, st, nil)
	return &fixture{
		applier:     NewApplier(backends, creds, schemas, st, quietLogger()),
		credentials: creds,
		schemas:     schemas,
		settings:    st,
	}
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(acmeManifest))
	require.NoError(t, err)

	assert.Equal(t, "acme", m.BackendID)
	require.NotNil(t, m.Superadmin)
	assert.Equal(t, "boss", m.Superadmin.Username)
	assert.Equal(t, true, m.CredentialsSettings["guestSignUpEnabled"])
	assert.Equal(t, "red", m.Settings["theme"]["color"])
	assert.Contains(t, m.Schemas, "msg")
	require.Len(t, m.Credentials, 1)
	assert.Equal(t, "fred@example.com", m.Credentials[0].Email)
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "not yaml", data: "backendId: [acme", wantErr: "failed to parse"},
		{name: "no backend", data: "schemas: {}", wantErr: "backendId is required"},
		{name: "superadmin without password", data: "backendId: acme\nsuperadmin:\n  username: boss", wantErr: "superadmin"},
		{name: "credentials without password", data: "backendId: acme\ncredentials:\n  - username: fred", wantErr: "credentials #1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := ParseManifest([]byte(acmeManifest))
	require.NoError(t, err)

	res, err := f.applier.Apply(ctx, m)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 2, res.Settings)
	assert.Equal(t, 1, res.Schemas)
	assert.Equal(t, 1, res.CredentialsCreated)

	_, err = f.credentials.Login(ctx, "acme", "boss", "secret-boss", 0)
	require.NoError(t, err)
	_, err = f.credentials.Login(ctx, "acme", "fred", "secret-fred", 0)
	require.NoError(t, err)

	cs, err := f.credentials.Settings(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, cs.GuestSignUpEnabled)

	var theme map[string]string
	require.NoError(t, f.settings.Get(ctx, "acme", "theme", &theme))
	assert.Equal(t, "red", theme["color"])

	msg, err := f.schemas.Get(ctx, "acme", "msg")
	require.NoError(t, err)
	_, ok := msg.Property("body")
	assert.True(t, ok)
	assert.True(t, msg.RolePermissions()[acl.RoleUser].Has(acl.UpdateMine))
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := ParseManifest([]byte(acmeManifest))
	require.NoError(t, err)

	_, err = f.applier.Apply(ctx, m)
	require.NoError(t, err)
	res, err := f.applier.Apply(ctx, m)
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Zero(t, res.CredentialsCreated)
	assert.Equal(t, 1, res.CredentialsKept)
	assert.Equal(t, 1, res.Schemas)
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "missing backend without superadmin", data: "backendId: acme", wantErr: "no superadmin"},
		{
			name:    "managed settings",
			data:    "backendId: acme\nsuperadmin: {username: boss, password: secret-boss}\nsettings:\n  dataacl: {}",
			wantErr: "can not be seeded",
		},
		{
			name:    "invalid schema",
			data:    "backendId: acme\nsuperadmin: {username: boss, password: secret-boss}\nschemas:\n  msg:\n    body: {_type: unicorn}",
			wantErr: "invalid schema msg",
		},
		{
			name:    "invalid backend id",
			data:    "backendId: Acme\nsuperadmin: {username: boss, password: secret-boss}",
			wantErr: "failed to create backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			m, err := ParseManifest([]byte(tt.data))
			require.NoError(t, err)

			_, err = f.applier.Apply(context.Background(), m)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b-zoo.yml", "backendId: zoo\nsuperadmin: {username: keeper, password: secret-keeper}")
	writeFile(t, dir, "a-acme.yaml", acmeManifest)
	writeFile(t, dir, "notes.txt", "not a manifest")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	manifests, err := NewLoader(quietLogger()).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, "acme", manifests[0].BackendID)
	assert.Equal(t, filepath.Join(dir, "a-acme.yaml"), manifests[0].Source)
	assert.Equal(t, "zoo", manifests[1].BackendID)

	f := newFixture(t)
	results, err := f.applier.ApplyAll(context.Background(), manifests)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLoadDirRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.yaml", "backendId: acme")
	writeFile(t, dir, "two.yaml", "backendId: acme")

	_, err := NewLoader(quietLogger()).LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "described by both")

	_, err = NewLoader(quietLogger()).LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Manifest, 4)
	w := NewWatcher(NewLoader(quietLogger()), quietLogger(), 10*time.Millisecond)
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, dir, func(ctx context.Context, m *Manifest) error {
			applied <- m
			return nil
		})
	}()

	// the watcher may not be registered yet, so keep writing until it reacts
	var got *Manifest
	require.Eventually(t, func() bool {
		writeFile(t, dir, "acme.yaml", acmeManifest)
		select {
		case got = <-applied:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "acme", got.BackendID)

	// invalid manifests are skipped
	writeFile(t, dir, "broken.yaml", "backendId: [")
	writeFile(t, dir, "ignored.txt", "backendId: zoo")
	select {
	case m := <-applied:
		assert.Equal(t, "acme", m.BackendID)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
