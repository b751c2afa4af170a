package credentials

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/engine/memory"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/settings"
)

var testHashParams = HashParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *recordingNotifier) SendPasswordReset(ctx context.Context, c *Credentials, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.codes == nil {
		n.codes = make(map[string]string)
	}
	n.codes[c.Username] = code
	return nil
}

type fixture struct {
	svc      *Service
	engine   engine.Engine
	store    *settings.Store
	clock    *fakeClock
	notifier *recordingNotifier
	metrics  *observability.Metrics
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	e := memory.New()
	store := settings.NewStore(e, settings.Options{})
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	params := testHashParams
	svc := NewService(e, store, Options{
		HashParams: &params,
		Notifier:   notifier,
		Metrics:    metrics,
		Clock:      clock.Now,
	})
	return &fixture{
		svc:      svc,
		engine:   e,
		store:    store,
		clock:    clock,
		notifier: notifier,
		metrics:  metrics,
		ctx:      context.Background(),
	}
}

// bootstrap creates a credential with roles and returns it
func (f *fixture) bootstrap(t *testing.T, tenantID, username string, roles ...string) *Credentials {
	t.Helper()
	c, err := f.svc.Bootstrap(f.ctx, tenantID, CreateRequest{
		Username: username,
		Password: "secret-" + username,
		Email:    username + "@example.com",
		Roles:    roles,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) settings(t *testing.T, tenantID, raw string) {
	t.Helper()
	_, err := SaveSettings(f.ctx, f.store, tenantID, []byte(raw))
	require.NoError(t, err)
}

func subject(c *Credentials) acl.Subject {
	return c.Subject()
}
