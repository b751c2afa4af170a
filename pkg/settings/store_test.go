package settings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/engine/memory"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/storage"
)

type mailSettings struct {
	From    string `json:"from"`
	Enabled bool   `json:"enabled"`
}

func TestStoreGetMissing(t *testing.T) {
	store := NewStore(memory.New(), Options{})
	ctx := context.Background()

	_, err := store.GetRaw(ctx, "acme", "mail")
	assert.True(t, errors.Is(err, errs.ErrNotFound), "missing index is not found")

	require.NoError(t, store.Put(ctx, "acme", "other", map[string]int{"a": 1}))
	_, err = store.GetRaw(ctx, "acme", "mail")
	assert.True(t, errors.Is(err, errs.ErrNotFound), "missing document is not found")
}

func TestStorePutGetDelete(t *testing.T) {
	store := NewStore(memory.New(), Options{})
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "acme", "mail", mailSettings{From: "noreply@acme.io", Enabled: true}))

	var got mailSettings
	require.NoError(t, store.Get(ctx, "acme", "mail", &got))
	assert.Equal(t, mailSettings{From: "noreply@acme.io", Enabled: true}, got)

	require.NoError(t, store.Put(ctx, "acme", "mail", mailSettings{From: "hello@acme.io"}))
	require.NoError(t, store.Get(ctx, "acme", "mail", &got))
	assert.Equal(t, "hello@acme.io", got.From, "put invalidates the cached copy")

	require.NoError(t, store.Delete(ctx, "acme", "mail"))
	err := store.Get(ctx, "acme", "mail", &got)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	err = store.Delete(ctx, "acme", "mail")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestStorePutRawRejectsNonObjects(t *testing.T) {
	store := NewStore(memory.New(), Options{})
	for _, body := range []string{``, `[]`, `"x"`, `{"a":`} {
		err := store.PutRaw(context.Background(), "acme", "mail", []byte(body))
		assert.True(t, errors.Is(err, errs.ErrValidation), "body %q", body)
	}
}

func TestStoreTenantIsolation(t *testing.T) {
	store := NewStore(memory.New(), Options{})
	ctx := context.Background()

	require.NoError(t, store.PutRaw(ctx, "acme", "mail", []byte(`{"from":"a"}`)))
	_, err := store.GetRaw(ctx, "zeta", "mail")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestStoreRawResultIsACopy(t *testing.T) {
	store := NewStore(memory.New(), Options{})
	ctx := context.Background()
	require.NoError(t, store.PutRaw(ctx, "acme", "mail", []byte(`{"from":"a"}`)))

	first, err := store.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)
	first[2] = 'X'

	second, err := store.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"a"}`, string(second))
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(memory.New(), Options{})
	ctx := context.Background()

	inc := func(current json.RawMessage) (interface{}, error) {
		counter := map[string]int{}
		if current != nil {
			if err := json.Unmarshal(current, &counter); err != nil {
				return nil, err
			}
		}
		counter["n"]++
		return counter, nil
	}
	require.NoError(t, store.Update(ctx, "acme", "counter", inc))
	require.NoError(t, store.Update(ctx, "acme", "counter", inc))

	var got map[string]int
	require.NoError(t, store.Get(ctx, "acme", "counter", &got))
	assert.Equal(t, 2, got["n"])

	boom := errs.Forbidden(errs.CodeForbidden, "no")
	err := store.Update(ctx, "acme", "counter", func(json.RawMessage) (interface{}, error) { return nil, boom })
	assert.Equal(t, boom, err)
}

func TestStoreUpdateConflict(t *testing.T) {
	eng := memory.New()
	store := NewStore(eng, Options{})
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "acme", "counter", map[string]int{"n": 1}))

	err := store.Update(ctx, "acme", "counter", func(json.RawMessage) (interface{}, error) {
		// a concurrent writer wins the race
		_, err := eng.Index(ctx, "acme-settings", engine.Document{ID: "counter", Source: map[string]interface{}{"n": 5}}, engine.WriteOptions{})
		require.NoError(t, err)
		return map[string]int{"n": 2}, nil
	})
	assert.True(t, errors.Is(err, errs.ErrConflict))
	assert.Equal(t, errs.CodeVersionConflict, errs.CodeOf(err))
}

func TestStoreTypeACLs(t *testing.T) {
	store := NewStore(memory.New(), Options{})
	ctx := context.Background()

	acls, err := store.TypeACLs(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, acls)

	msg := acl.RolePermissions{acl.RoleUser: acl.NewSet(acl.Create, acl.UpdateMine)}
	require.NoError(t, store.PutTypeACL(ctx, "acme", "msg", msg))
	require.NoError(t, store.PutTypeACL(ctx, "acme", "dog", acl.DefaultRolePermissions()))

	acls, err = store.TypeACLs(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, msg, acls["msg"])
	assert.Equal(t, acl.DefaultRolePermissions(), acls["dog"])

	require.NoError(t, store.RemoveTypeACL(ctx, "acme", "msg"))
	acls, err = store.TypeACLs(ctx, "acme")
	require.NoError(t, err)
	assert.NotContains(t, acls, "msg")
	assert.Contains(t, acls, "dog")

	evaluator := acl.NewEvaluator(store)
	ok, err := evaluator.Check(ctx, "acme", acl.Subject{ID: "u1"}, "dog", acl.Create)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreLocalCacheHit(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	eng := memory.New()
	store := NewStore(eng, Options{Metrics: metrics})
	ctx := context.Background()
	require.NoError(t, store.PutRaw(ctx, "acme", "mail", []byte(`{"from":"a"}`)))

	_, err := store.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)
	_, err = store.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("settings")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("settings", "local")))

	// writes behind the store are served stale until invalidated
	_, err = eng.Index(ctx, "acme-settings", engine.Document{ID: "mail", Source: map[string]interface{}{"from": "b"}}, engine.WriteOptions{})
	require.NoError(t, err)
	raw, err := store.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"a"}`, string(raw))

	store.InvalidateTenant(ctx, "acme")
	raw, err = store.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"b"}`, string(raw))
}

func TestStoreLocalCacheExpires(t *testing.T) {
	eng := memory.New()
	store := NewStore(eng, Options{CacheTTL: 20 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, store.PutRaw(ctx, "acme", "mail", []byte(`{"from":"a"}`)))
	_, err := store.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)

	_, err = eng.Index(ctx, "acme-settings", engine.Document{ID: "mail", Source: map[string]interface{}{"from": "b"}}, engine.WriteOptions{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		raw, err := store.GetRaw(ctx, "acme", "mail")
		return err == nil && string(raw) == `{"from":"b"}`
	}, time.Second, 10*time.Millisecond)
}

func TestStoreRedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := storage.DefaultConfig()
	rc := storage.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg)
	t.Cleanup(func() { rc.Close() })

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	eng := memory.New()
	ctx := context.Background()

	writer := NewStore(eng, Options{Redis: rc})
	require.NoError(t, writer.PutRaw(ctx, "acme", "mail", []byte(`{"from":"a"}`)))
	_, err := writer.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)
	assert.True(t, mr.Exists("kennel:settings:acme:mail"), "reads populate the shared tier")

	// a second process starts with a cold local tier
	reader := NewStore(eng, Options{Redis: rc, Metrics: metrics})
	raw, err := reader.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"a"}`, string(raw))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("settings", "redis")))

	require.NoError(t, writer.Delete(ctx, "acme", "mail"))
	assert.False(t, mr.Exists("kennel:settings:acme:mail"), "delete invalidates the shared tier")
}

func TestStoreRedisWritesSeenByOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := storage.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()}), storage.DefaultConfig())
	t.Cleanup(func() { rc.Close() })
	eng := memory.New()
	ctx := context.Background()

	writer := NewStore(eng, Options{Redis: rc})
	reader := NewStore(eng, Options{Redis: rc})
	require.NoError(t, writer.PutTypeACL(ctx, "acme", "dog", acl.RolePermissions{acl.RoleAll: acl.NewSet(acl.Read)}))

	acls, err := reader.TypeACLs(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, acls["dog"][acl.RoleAll].Has(acl.Read))

	require.NoError(t, writer.RemoveTypeACL(ctx, "acme", "dog"))

	acls, err = reader.TypeACLs(ctx, "acme")
	require.NoError(t, err)
	assert.NotContains(t, acls, "dog", "the reader must not serve a type ACL removed elsewhere")
}

func TestStoreRedisFailureFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := storage.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), storage.DefaultConfig())
	t.Cleanup(func() { rc.Close() })
	store := NewStore(memory.New(), Options{Redis: rc})
	ctx := context.Background()

	mr.Close()
	require.NoError(t, store.PutRaw(ctx, "acme", "mail", []byte(`{"from":"a"}`)))
	raw, err := store.GetRaw(ctx, "acme", "mail")
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"a"}`, string(raw))
}
