package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/storage"
	"github.com/platinummonkey/kennel/pkg/tenant"
)

// Internal settings ids
const (
	CredentialsID = "credentials"
	DataACLID     = "dataacl"
)

const cacheName = "settings"

// Options configures a Store
type Options struct {
	// CacheSize bounds the number of local entries, 0 means 1024
	CacheSize int
	// CacheTTL is the lifetime of cached entries, 0 means 30s
	CacheTTL time.Duration
	// Redis is the optional shared cache tier. When set it replaces the local
	// tier, so a write on one instance is seen by every other one.
	Redis   *storage.RedisClient
	Metrics *observability.Metrics
}

// Store reads and writes settings documents
type Store struct {
	engine engine.Engine
	// local is nil when redis is set
	local   *lru.LRU[string, []byte]
	redis   *storage.RedisClient
	metrics *observability.Metrics
}

var _ acl.Source = (*Store)(nil)

// NewStore creates a settings store over an engine
func NewStore(e engine.Engine, opts Options) *Store {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	s := &Store{
		engine:  e,
		redis:   opts.Redis,
		metrics: opts.Metrics,
	}
	if s.redis == nil {
		s.local = lru.NewLRU[string, []byte](opts.CacheSize, nil, opts.CacheTTL)
	}
	return s
}

func cacheKey(tenantID, id string) string {
	return cacheName + ":" + tenantID + ":" + id
}

func alias(tenantID string) string {
	return tenant.Alias(tenantID, tenant.SettingsType)
}

// GetRaw returns the JSON document stored under id
func (s *Store) GetRaw(ctx context.Context, tenantID, id string) (json.RawMessage, error) {
	key := cacheKey(tenantID, id)
	if s.local != nil {
		if data, ok := s.local.Get(key); ok {
			s.metrics.RecordCacheHit(cacheName, "local")
			return clone(data), nil
		}
	} else {
		data, err := s.redis.Get(ctx, key)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Warn("settings cache read failed")
		} else if data != nil {
			s.metrics.RecordCacheHit(cacheName, "redis")
			return clone(data), nil
		}
	}
	s.metrics.RecordCacheMiss(cacheName)

	doc, err := s.engine.Get(ctx, alias(tenantID), id)
	if err != nil {
		return nil, translate(err, id)
	}
	data, err := json.Marshal(doc.Source)
	if err != nil {
		return nil, errs.Internal(err, "failed to encode settings [%s]", id)
	}
	s.fill(ctx, key, data)
	return clone(data), nil
}

// Get decodes the document stored under id into dest
func (s *Store) Get(ctx context.Context, tenantID, id string, dest interface{}) error {
	data, err := s.GetRaw(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errs.Internal(err, "failed to decode settings [%s]", id)
	}
	return nil
}

// PutRaw stores a JSON object under id
func (s *Store) PutRaw(ctx context.Context, tenantID, id string, data []byte) error {
	source, err := decodeObject(data)
	if err != nil {
		return err
	}
	if err := s.ensureIndex(ctx, tenantID); err != nil {
		return err
	}
	if _, err := s.engine.Index(ctx, alias(tenantID), engine.Document{ID: id, Source: source}, engine.WriteOptions{}); err != nil {
		return translate(err, id)
	}
	s.Invalidate(ctx, tenantID, id)
	return nil
}

// Put encodes value and stores it under id
func (s *Store) Put(ctx context.Context, tenantID, id string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errs.Internal(err, "failed to encode settings [%s]", id)
	}
	return s.PutRaw(ctx, tenantID, id, data)
}

// Delete removes the document stored under id
func (s *Store) Delete(ctx context.Context, tenantID, id string) error {
	err := s.engine.Delete(ctx, alias(tenantID), id, engine.MatchAnyVersion)
	s.Invalidate(ctx, tenantID, id)
	if err != nil {
		return translate(err, id)
	}
	return nil
}

// Update runs a versioned read-modify-write of the document stored under id.
// fn receives the current document, nil when absent, and returns the new
// value. A concurrent writer makes Update fail with a version conflict.
func (s *Store) Update(ctx context.Context, tenantID, id string, fn func(current json.RawMessage) (interface{}, error)) error {
	if err := s.ensureIndex(ctx, tenantID); err != nil {
		return err
	}

	opts := engine.WriteOptions{CreateOnly: true}
	var current json.RawMessage
	doc, err := s.engine.Get(ctx, alias(tenantID), id)
	switch {
	case err == nil:
		if current, err = json.Marshal(doc.Source); err != nil {
			return errs.Internal(err, "failed to encode settings [%s]", id)
		}
		opts = engine.WriteOptions{Version: doc.Version}
	case !errors.Is(err, engine.ErrDocumentNotFound):
		return translate(err, id)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return errs.Internal(err, "failed to encode settings [%s]", id)
	}
	source, err := decodeObject(data)
	if err != nil {
		return err
	}
	if _, err := s.engine.Index(ctx, alias(tenantID), engine.Document{ID: id, Source: source}, opts); err != nil {
		return translate(err, id)
	}
	s.Invalidate(ctx, tenantID, id)
	return nil
}

// Invalidate drops id from the cache
func (s *Store) Invalidate(ctx context.Context, tenantID, id string) {
	key := cacheKey(tenantID, id)
	if s.local != nil {
		s.local.Remove(key)
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, key); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("settings cache invalidation failed")
		}
	}
}

// InvalidateTenant drops every cached document of a tenant. Only the internal
// ids are removed from the shared tier.
func (s *Store) InvalidateTenant(ctx context.Context, tenantID string) {
	if s.local != nil {
		prefix := cacheKey(tenantID, "")
		for _, key := range s.local.Keys() {
			if strings.HasPrefix(key, prefix) {
				s.local.Remove(key)
			}
		}
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, cacheKey(tenantID, CredentialsID), cacheKey(tenantID, DataACLID)); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("settings cache invalidation failed")
		}
	}
}

func (s *Store) fill(ctx context.Context, key string, data []byte) {
	if s.local != nil {
		s.local.Add(key, data)
		return
	}
	if err := s.redis.Set(ctx, cacheName, key, data); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("settings cache write failed")
	}
}

func (s *Store) ensureIndex(ctx context.Context, tenantID string) error {
	exists, err := s.engine.Exists(ctx, alias(tenantID))
	if err != nil {
		return errs.Internal(err, "failed to check settings index")
	}
	if exists {
		return nil
	}
	name := tenant.IndexName(tenantID, tenant.SettingsType, 0)
	err = s.engine.CreateIndex(ctx, name, alias(tenantID), engine.Mapping{})
	if err != nil && !errors.Is(err, engine.ErrIndexExists) {
		return errs.Internal(err, "failed to create settings index")
	}
	return nil
}

func decodeObject(data []byte) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errs.InvalidParameter("settings must be a JSON object")
	}
	var source map[string]interface{}
	if err := json.Unmarshal(trimmed, &source); err != nil {
		return nil, errs.InvalidParameter("invalid settings JSON: %v", err)
	}
	return source, nil
}

func translate(err error, id string) error {
	switch {
	case errors.Is(err, engine.ErrIndexNotFound), errors.Is(err, engine.ErrDocumentNotFound):
		return errs.NotFound("settings [%s] not found", id)
	case errors.Is(err, engine.ErrVersionConflict), errors.Is(err, engine.ErrDocumentExists):
		return errs.Conflict(errs.CodeVersionConflict, "settings [%s] updated concurrently", id)
	default:
		return errs.Internal(err, "settings [%s] storage failure", id)
	}
}

func clone(data []byte) json.RawMessage {
	return append(json.RawMessage(nil), data...)
}
