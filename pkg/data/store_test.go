package data

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/engine/memory"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/schema"
	"github.com/platinummonkey/kennel/pkg/settings"
)

var (
	superadmin = acl.Subject{ID: "s1", Roles: []string{acl.RoleSuperAdmin}}
	admin      = acl.Subject{ID: "a1", Roles: []string{acl.RoleAdmin}}
	owner      = acl.Subject{ID: "u1", Group: "g1"}
	stranger   = acl.Subject{ID: "u2", Group: "g2"}
	groupmate  = acl.Subject{ID: "u3", Group: "g1"}
	anonymous  = acl.AnonymousSubject()
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store   *Store
	engine  engine.Engine
	schemas *schema.Registry
	clock   *clock
	ctx     context.Context
}

func dogSchema() *schema.Schema {
	return schema.New("dog").
		String("name").Required().
		Integer("age").
		Text("bio").
		String("tags").Array().
		Object("address").String("street").String("city").Close().
		MustBuild()
}

func msgSchema() *schema.Schema {
	return schema.New("msg").
		Text("body").
		ACL(acl.RoleUser, acl.Create, acl.Read, acl.Search, acl.UpdateMine, acl.DeleteGroup).
		MustBuild()
}

func tagSchema() *schema.Schema {
	return schema.New("tag").
		String("code").Required().
		String("label").
		ID("code").
		ACL(acl.RoleUser, acl.Create, acl.Read, acl.UpdateMine).
		MustBuild()
}

func newFixture(t *testing.T, tenants ...string) *fixture {
	t.Helper()
	if len(tenants) == 0 {
		tenants = []string{"acme"}
	}
	e := memory.New()
	st := settings.NewStore(e, settings.Options{})
	reg := schema.NewRegistry(e, st)
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f := &fixture{
		store:   NewStore(e, reg, acl.NewEvaluator(st), Options{Clock: c.Now}),
		engine:  e,
		schemas: reg,
		clock:   c,
		ctx:     context.Background(),
	}
	for _, id := range tenants {
		for _, s := range []*schema.Schema{dogSchema(), msgSchema(), tagSchema()} {
			_, err := reg.Set(f.ctx, id, admin, s)
			require.NoError(t, err)
		}
	}
	return f
}

func (f *fixture) create(t *testing.T, typ string, source map[string]interface{}, subject acl.Subject) *Object {
	t.Helper()
	o, err := f.store.Create(f.ctx, "acme", typ, "", source, subject)
	require.NoError(t, err)
	return o
}

func TestCreateStampsMeta(t *testing.T) {
	f := newFixture(t)

	o := f.create(t, "dog", map[string]interface{}{
		"name": "rex",
		"age":  3,
		"meta": map[string]interface{}{"owner": "forged"},
	}, owner)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "dog", o.Type)
	assert.Equal(t, int64(1), o.Version)
	assert.Equal(t, "u1", o.Owner)
	assert.Equal(t, "g1", o.Group)
	assert.Equal(t, f.clock.Now(), o.CreatedAt)
	assert.Equal(t, o.CreatedAt, o.UpdatedAt)
	assert.Equal(t, map[string]interface{}{"name": "rex", "age": 3.0}, o.Source)

	got, err := f.store.Get(f.ctx, "acme", "dog", o.ID, anonymous)
	require.NoError(t, err)
	assert.Equal(t, o, got)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "rex", wire["name"])
	meta := wire["meta"].(map[string]interface{})
	assert.Equal(t, o.ID, meta["id"])
	assert.Equal(t, "dog", meta["type"])
	assert.Equal(t, 1.0, meta["version"])
	assert.Equal(t, "u1", meta["owner"])
	assert.Equal(t, "2026-03-01T12:00:00Z", meta["createdAt"])
}

func TestCreateChecks(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		typ     string
		source  map[string]interface{}
		subject acl.Subject
		want    error
	}{
		{"anonymous", "dog", map[string]interface{}{"name": "rex"}, anonymous, errs.ErrForbidden},
		{"reserved type", "settings", map[string]interface{}{"name": "rex"}, superadmin, errs.ErrValidation},
		{"credentials type", "credentials", map[string]interface{}{"name": "rex"}, superadmin, errs.ErrValidation},
		{"unknown type", "cat", map[string]interface{}{"name": "rex"}, owner, errs.ErrNotFound},
		{"missing required", "dog", map[string]interface{}{"age": 3}, owner, errs.ErrValidation},
		{"unknown field", "dog", map[string]interface{}{"name": "rex", "color": "red"}, owner, errs.ErrValidation},
		{"wrong type", "dog", map[string]interface{}{"name": "rex", "age": "old"}, owner, errs.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.Create(f.ctx, "acme", tt.typ, "", tt.source, tt.subject)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCreateIDPrecedence(t *testing.T) {
	f := newFixture(t)

	o, err := f.store.Create(f.ctx, "acme", "tag", "", map[string]interface{}{"code": "abc"}, owner)
	require.NoError(t, err)
	assert.Equal(t, "abc", o.ID, "id path wins")

	_, err = f.store.Create(f.ctx, "acme", "tag", "xyz", map[string]interface{}{"code": "def"}, owner)
	assert.True(t, errors.Is(err, errs.ErrValidation), "explicit id must agree with the id path")

	_, err = f.store.Create(f.ctx, "acme", "tag", "", map[string]interface{}{"code": "abc"}, owner)
	assert.Equal(t, errs.CodeAlreadyExists, errs.CodeOf(err))

	o, err = f.store.Create(f.ctx, "acme", "dog", "rex", map[string]interface{}{"name": "rex"}, owner)
	require.NoError(t, err)
	assert.Equal(t, "rex", o.ID)
}

func TestUpdatePatchAndReplace(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, "dog", map[string]interface{}{
		"name":    "rex",
		"age":     3,
		"bio":     "good boy",
		"address": map[string]interface{}{"city": "paris"},
	}, owner)
	f.clock.Advance(time.Minute)

	patched, err := f.store.Update(f.ctx, "acme", UpdateRequest{
		Type:    "dog",
		ID:      o.ID,
		Payload: map[string]interface{}{"age": 4, "bio": nil, "tags": []interface{}{"a"}},
	}, owner)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"name":    "rex",
		"age":     4.0,
		"tags":    []interface{}{"a"},
		"address": map[string]interface{}{"city": "paris"},
	}, patched.Source)
	assert.Equal(t, int64(2), patched.Version)
	assert.Equal(t, o.CreatedAt, patched.CreatedAt)
	assert.Equal(t, f.clock.Now(), patched.UpdatedAt)

	replaced, err := f.store.Update(f.ctx, "acme", UpdateRequest{
		Type:    "dog",
		ID:      o.ID,
		Payload: map[string]interface{}{"name": "max"},
		Strict:  true,
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "max"}, replaced.Source)
	assert.Equal(t, "u1", replaced.Owner, "owner survives updates by others")
	assert.Equal(t, "g1", replaced.Group)

	_, err = f.store.Update(f.ctx, "acme", UpdateRequest{
		Type:    "dog",
		ID:      o.ID,
		Payload: map[string]interface{}{"age": 5},
		Strict:  true,
	}, admin)
	assert.True(t, errors.Is(err, errs.ErrValidation), "replace still checks required fields")
}

func TestUpdateVersion(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, "dog", map[string]interface{}{"name": "rex"}, owner)

	updated, err := f.store.Update(f.ctx, "acme", UpdateRequest{Type: "dog", ID: o.ID, Version: 1, Payload: map[string]interface{}{"age": 1}}, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = f.store.Update(f.ctx, "acme", UpdateRequest{Type: "dog", ID: o.ID, Version: 1, Payload: map[string]interface{}{"age": 2}}, owner)
	assert.Equal(t, errs.CodeVersionConflict, errs.CodeOf(err))

	_, err = f.store.Update(f.ctx, "acme", UpdateRequest{Type: "dog", ID: "ghost", Payload: map[string]interface{}{"age": 2}}, owner)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestConcurrentUpdatesOnOneVersion(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, "dog", map[string]interface{}{"name": "rex"}, owner)

	var (
		wg        sync.WaitGroup
		successes int32
		conflicts int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.store.Update(f.ctx, "acme", UpdateRequest{
				Type:    "dog",
				ID:      o.ID,
				Version: o.Version,
				Payload: map[string]interface{}{"age": i},
			}, owner)
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, errs.ErrConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(7), conflicts)
}

func TestOwnershipPermissions(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, "msg", map[string]interface{}{"body": "hello"}, owner)

	_, err := f.store.Get(f.ctx, "acme", "msg", o.ID, stranger)
	require.NoError(t, err, "read is granted to every user")

	_, err = f.store.Update(f.ctx, "acme", UpdateRequest{Type: "msg", ID: o.ID, Payload: map[string]interface{}{"body": "hi"}}, owner)
	assert.NoError(t, err)

	_, err = f.store.Update(f.ctx, "acme", UpdateRequest{Type: "msg", ID: o.ID, Payload: map[string]interface{}{"body": "pwned"}}, stranger)
	assert.True(t, errors.Is(err, errs.ErrForbidden), "updateMine does not cover other owners")

	_, err = f.store.Get(f.ctx, "acme", "msg", o.ID, anonymous)
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	err = f.store.Delete(f.ctx, "acme", "msg", o.ID, stranger)
	assert.True(t, errors.Is(err, errs.ErrForbidden))
	err = f.store.Delete(f.ctx, "acme", "msg", o.ID, owner)
	assert.True(t, errors.Is(err, errs.ErrForbidden), "msg owners delete through their group only")
	require.NoError(t, f.store.Delete(f.ctx, "acme", "msg", o.ID, groupmate))
}

func TestReadMine(t *testing.T) {
	f := newFixture(t)
	secret := schema.New("secret").String("value").ACL(acl.RoleUser, acl.Create, acl.ReadMine).MustBuild()
	_, err := f.schemas.Set(f.ctx, "acme", admin, secret)
	require.NoError(t, err)

	o := f.create(t, "secret", map[string]interface{}{"value": "42"}, owner)
	_, err = f.store.Get(f.ctx, "acme", "secret", o.ID, owner)
	assert.NoError(t, err)
	_, err = f.store.Get(f.ctx, "acme", "secret", o.ID, stranger)
	assert.True(t, errors.Is(err, errs.ErrForbidden))
	_, err = f.store.Get(f.ctx, "acme", "secret", "ghost", anonymous)
	assert.True(t, errors.Is(err, errs.ErrForbidden), "refused before the object is read")
}

func TestUpdateCanNotChangeIDPath(t *testing.T) {
	f := newFixture(t)
	f.create(t, "tag", map[string]interface{}{"code": "abc", "label": "a"}, owner)

	_, err := f.store.Update(f.ctx, "acme", UpdateRequest{Type: "tag", ID: "abc", Payload: map[string]interface{}{"code": "xyz"}}, owner)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	updated, err := f.store.Update(f.ctx, "acme", UpdateRequest{Type: "tag", ID: "abc", Payload: map[string]interface{}{"code": "abc", "label": "b"}}, owner)
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Source["label"])
}

func TestSave(t *testing.T) {
	f := newFixture(t)

	o, created, err := f.store.Save(f.ctx, "acme", UpdateRequest{Type: "dog", ID: "rex", Payload: map[string]interface{}{"name": "rex"}}, owner)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "rex", o.ID)

	o, created, err = f.store.Save(f.ctx, "acme", UpdateRequest{Type: "dog", ID: "rex", Payload: map[string]interface{}{"age": 2}}, owner)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(2), o.Version)
	assert.Equal(t, "rex", o.Source["name"])

	_, _, err = f.store.Save(f.ctx, "acme", UpdateRequest{Type: "dog", ID: "max", Version: 3, Payload: map[string]interface{}{"name": "max"}}, owner)
	assert.True(t, errors.Is(err, errs.ErrConflict))

	_, _, err = f.store.Save(f.ctx, "acme", UpdateRequest{Type: "cat", ID: "tom", Payload: map[string]interface{}{"name": "tom"}}, owner)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, _, err = f.store.Save(f.ctx, "acme", UpdateRequest{Type: "dog", ID: "rex", Payload: map[string]interface{}{"age": 9}}, stranger)
	assert.True(t, errors.Is(err, errs.ErrForbidden))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, "dog", map[string]interface{}{"name": "rex"}, owner)

	err := f.store.Delete(f.ctx, "acme", "dog", o.ID, stranger)
	assert.True(t, errors.Is(err, errs.ErrForbidden))
	err = f.store.Delete(f.ctx, "acme", "dog", o.ID, anonymous)
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	require.NoError(t, f.store.Delete(f.ctx, "acme", "dog", o.ID, owner))
	err = f.store.Delete(f.ctx, "acme", "dog", o.ID, owner)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	_, err = f.store.Get(f.ctx, "acme", "dog", o.ID, owner)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestDeleteAll(t *testing.T) {
	f := newFixture(t)
	f.create(t, "dog", map[string]interface{}{"name": "rex"}, owner)
	f.create(t, "dog", map[string]interface{}{"name": "max"}, owner)
	f.create(t, "dog", map[string]interface{}{"name": "rex"}, stranger)

	_, err := f.store.DeleteAll(f.ctx, "acme", "dog", engine.Query{}, owner)
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	n, err := f.store.DeleteAll(f.ctx, "acme", "dog", ParseQuery("name:rex"), admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	res, err := f.store.Search(f.ctx, "acme", SearchRequest{Types: []string{"dog"}}, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
}

func TestFieldOperations(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, "dog", map[string]interface{}{"name": "rex", "age": 3, "bio": "good"}, owner)

	age, err := f.store.GetField(f.ctx, "acme", "dog", o.ID, "age", owner)
	require.NoError(t, err)
	assert.Equal(t, 3.0, age)

	_, err = f.store.GetField(f.ctx, "acme", "dog", o.ID, "tags", owner)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	_, err = f.store.GetField(f.ctx, "acme", "dog", o.ID, "color", owner)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	updated, err := f.store.SetField(f.ctx, "acme", "dog", o.ID, "age", 4, 0, owner)
	require.NoError(t, err)
	assert.Equal(t, 4.0, updated.Source["age"])
	assert.Equal(t, "good", updated.Source["bio"])

	_, err = f.store.SetField(f.ctx, "acme", "dog", o.ID, "age", nil, 0, owner)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = f.store.SetField(f.ctx, "acme", "dog", o.ID, "age", 5, 1, owner)
	assert.True(t, errors.Is(err, errs.ErrConflict))

	updated, err = f.store.DeleteField(f.ctx, "acme", "dog", o.ID, "bio", updated.Version, owner)
	require.NoError(t, err)
	_, ok := updated.Source["bio"]
	assert.False(t, ok)

	_, err = f.store.DeleteField(f.ctx, "acme", "dog", o.ID, "name", 0, owner)
	assert.True(t, errors.Is(err, errs.ErrValidation), "required fields can not be deleted")

	_, err = f.store.SetField(f.ctx, "acme", "dog", o.ID, "address", map[string]interface{}{"street": "rue", "city": "paris"}, 0, owner)
	require.NoError(t, err)
	updated, err = f.store.SetField(f.ctx, "acme", "dog", o.ID, "address", map[string]interface{}{"city": "lyon"}, 0, owner)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"city": "lyon"}, updated.Source["address"], "the field is replaced, not merged")
	assert.Equal(t, 4.0, updated.Source["age"])

	stored, err := f.store.Get(f.ctx, "acme", "dog", o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"city": "lyon"}, stored.Source["address"])
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t, "acme", "beta")
	_, err := f.store.Create(f.ctx, "acme", "dog", "rex", map[string]interface{}{"name": "rex"}, owner)
	require.NoError(t, err)

	_, err = f.store.Get(f.ctx, "beta", "dog", "rex", owner)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = f.store.Create(f.ctx, "beta", "dog", "rex", map[string]interface{}{"name": "other rex"}, owner)
	require.NoError(t, err)

	o, err := f.store.Get(f.ctx, "acme", "dog", "rex", owner)
	require.NoError(t, err)
	assert.Equal(t, "rex", o.Source["name"])

	res, err := f.store.Search(f.ctx, "beta", SearchRequest{}, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
}
