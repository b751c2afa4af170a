package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/config"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Engine: config.EngineConfig{Type: config.EngineMemory, Timeout: 5 * time.Second},
		Storage: storage.Config{
			ExportDir:       t.TempDir(),
			DefaultCacheTTL: time.Second,
		},
		Credentials: config.CredentialsConfig{
			RootTenant:       "api",
			SuperdogUsername: "dog",
			SuperdogPassword: "secret-dog",
		},
	}
}

func TestNewMemory(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	a, err := New(ctx, testConfig(t), observability.NopLogger(), metrics)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.SQL)
	assert.Nil(t, a.Redis)
	assert.IsType(t, &storage.FileSink{}, a.Sink)

	exists, err := a.Services.Backends.Exists(ctx, "api")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = a.Services.Credentials.Login(ctx, "api", "dog", "secret-dog", 0)
	assert.NoError(t, err)
}

func TestNewSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Engine.Type = config.EngineSQLite
	cfg.Engine.DSN = filepath.Join(t.TempDir(), "kennel.db")

	a, err := New(ctx, cfg, observability.NopLogger(), nil)
	require.NoError(t, err)
	require.NotNil(t, a.SQL)
	require.NotNil(t, a.SQL.DB())

	exists, err := a.Services.Backends.Exists(ctx, "api")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, a.Close())

	// the root backend survives a restart
	a, err = New(ctx, cfg, observability.NopLogger(), nil)
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Services.Credentials.Login(ctx, "api", "dog", "secret-dog", 0)
	assert.NoError(t, err)
}

func TestOpenEngineUnsupported(t *testing.T) {
	_, _, err := OpenEngine(context.Background(), config.EngineConfig{Type: "cassandra"}, nil)

	assert.Error(t, err)
}
