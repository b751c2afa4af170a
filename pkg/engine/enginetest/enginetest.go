// Package enginetest holds the behavioural suite every engine.Engine
// implementation must pass.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/engine"
)

// Factory returns a fresh, empty engine for one subtest.
type Factory func(t *testing.T) engine.Engine

// DogMapping is a small strict mapping used across the suite.
func DogMapping() engine.Mapping {
	return engine.Mapping{
		Dynamic: engine.DynamicStrict,
		Properties: map[string]engine.Field{
			"name":  {Type: engine.FieldKeyword},
			"bio":   {Type: engine.FieldText},
			"age":   {Type: engine.FieldInteger},
			"owner": {Type: engine.FieldKeyword},
		},
	}
}

// Run executes the suite against engines built by newEngine.
func Run(t *testing.T, newEngine Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, e engine.Engine)
	}{
		{"Indices", testIndices},
		{"PutMapping", testPutMapping},
		{"Versioning", testVersioning},
		{"StrictMapping", testStrictMapping},
		{"Delete", testDelete},
		{"Search", testSearch},
		{"SearchSkipsMissingAliases", testSearchSkipsMissing},
		{"DeleteByQuery", testDeleteByQuery},
		{"ConcurrentCAS", testConcurrentCAS},
		{"SourceIsolation", testSourceIsolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			t.Cleanup(func() { _ = e.Close() })
			tt.fn(t, e)
		})
	}
}

func mustCreate(t *testing.T, e engine.Engine, tenant, typ string) string {
	t.Helper()
	alias := tenant + "-" + typ
	require.NoError(t, e.CreateIndex(context.Background(), alias+"-0", alias, DogMapping()))
	return alias
}

func testIndices(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	alias := mustCreate(t, e, "acme", "dog")
	mustCreate(t, e, "acme", "cat")
	mustCreate(t, e, "other", "dog")

	ok, err := e.Exists(ctx, alias)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Exists(ctx, "acme-bird")
	require.NoError(t, err)
	assert.False(t, ok)

	err = e.CreateIndex(ctx, "acme-dog-0", "acme-dog", DogMapping())
	assert.ErrorIs(t, err, engine.ErrIndexExists)

	infos, err := e.ListIndices(ctx, "acme-")
	require.NoError(t, err)
	assert.Equal(t, []engine.IndexInfo{
		{Name: "acme-cat-0", Alias: "acme-cat"},
		{Name: "acme-dog-0", Alias: "acme-dog"},
	}, infos)

	m, err := e.GetMapping(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, engine.DynamicStrict, m.Dynamic)
	assert.Contains(t, m.Properties, "name")

	require.NoError(t, e.DeleteIndex(ctx, alias))
	_, err = e.GetMapping(ctx, alias)
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
	assert.ErrorIs(t, e.DeleteIndex(ctx, alias), engine.ErrIndexNotFound)
}

func testPutMapping(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	alias := mustCreate(t, e, "acme", "dog")

	next := DogMapping()
	next.Properties["color"] = engine.Field{Type: engine.FieldKeyword}
	require.NoError(t, e.PutMapping(ctx, alias, next))

	_, err := e.Index(ctx, alias, engine.Document{Source: map[string]interface{}{"color": "brown"}}, engine.WriteOptions{})
	require.NoError(t, err)

	bad := DogMapping()
	bad.Properties["age"] = engine.Field{Type: engine.FieldText}
	assert.ErrorIs(t, e.PutMapping(ctx, alias, bad), engine.ErrMappingConflict)
	assert.ErrorIs(t, e.PutMapping(ctx, "acme-nope", next), engine.ErrIndexNotFound)
}

func testVersioning(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	alias := mustCreate(t, e, "acme", "dog")

	created, err := e.Index(ctx, alias, engine.Document{Source: map[string]interface{}{"name": "rex"}}, engine.WriteOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.EqualValues(t, 1, created.Version)

	_, err = e.Index(ctx, alias, engine.Document{ID: created.ID}, engine.WriteOptions{CreateOnly: true})
	assert.ErrorIs(t, err, engine.ErrDocumentExists)

	updated, err := e.Index(ctx, alias, engine.Document{ID: created.ID, Source: map[string]interface{}{"name": "max"}},
		engine.WriteOptions{Version: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Version)

	_, err = e.Index(ctx, alias, engine.Document{ID: created.ID, Source: map[string]interface{}{"name": "stale"}},
		engine.WriteOptions{Version: 1})
	assert.ErrorIs(t, err, engine.ErrVersionConflict)

	_, err = e.Index(ctx, alias, engine.Document{ID: "ghost"}, engine.WriteOptions{Version: 3})
	assert.ErrorIs(t, err, engine.ErrVersionConflict)

	upserted, err := e.Index(ctx, alias, engine.Document{ID: created.ID, Source: map[string]interface{}{"name": "any"}},
		engine.WriteOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, upserted.Version)

	got, err := e.Get(ctx, alias, created.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.Version)
	assert.Equal(t, "any", got.Source["name"])

	named, err := e.Index(ctx, alias, engine.Document{ID: "fixed"}, engine.WriteOptions{CreateOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "fixed", named.ID)
	assert.EqualValues(t, 1, named.Version)

	_, err = e.Get(ctx, alias, "missing")
	assert.ErrorIs(t, err, engine.ErrDocumentNotFound)
	_, err = e.Index(ctx, "acme-nope", engine.Document{}, engine.WriteOptions{})
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
}

func testStrictMapping(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	alias := mustCreate(t, e, "acme", "dog")

	_, err := e.Index(ctx, alias, engine.Document{Source: map[string]interface{}{"wings": 2}}, engine.WriteOptions{})
	assert.ErrorIs(t, err, engine.ErrStrictMapping)

	_, err = e.Index(ctx, alias, engine.Document{Source: map[string]interface{}{"age": "old"}}, engine.WriteOptions{})
	assert.ErrorIs(t, err, engine.ErrStrictMapping)
}

func testDelete(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	alias := mustCreate(t, e, "acme", "dog")

	doc, err := e.Index(ctx, alias, engine.Document{ID: "a", Source: map[string]interface{}{"name": "rex"}}, engine.WriteOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, e.Delete(ctx, alias, "a", doc.Version+1), engine.ErrVersionConflict)
	require.NoError(t, e.Delete(ctx, alias, "a", doc.Version))
	assert.ErrorIs(t, e.Delete(ctx, alias, "a", engine.MatchAnyVersion), engine.ErrDocumentNotFound)
}

func seedDogs(t *testing.T, e engine.Engine, alias string) {
	t.Helper()
	dogs := []map[string]interface{}{
		{"name": "rex", "bio": "a brave shepherd", "age": 7, "owner": "u1"},
		{"name": "fido", "bio": "loves shepherd pie and naps", "age": 3, "owner": "u2"},
		{"name": "spot", "bio": "sleepy", "age": 5, "owner": "u1"},
	}
	for _, d := range dogs {
		_, err := e.Index(context.Background(), alias, engine.Document{ID: d["name"].(string), Source: d}, engine.WriteOptions{})
		require.NoError(t, err)
	}
	require.NoError(t, e.Refresh(context.Background(), alias))
}

func testSearch(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	alias := mustCreate(t, e, "acme", "dog")
	seedDogs(t, e, alias)

	res, err := e.Search(ctx, engine.SearchRequest{Aliases: []string{alias}, Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	assert.Len(t, res.Hits, 3)

	res, err = e.Search(ctx, engine.SearchRequest{
		Aliases: []string{alias},
		Query:   engine.Query{Terms: map[string][]interface{}{"owner": {"u1"}}},
		Sort:    []engine.SortField{{Field: "age"}},
		Size:    10,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "spot", res.Hits[0].Document.ID)
	assert.Equal(t, "rex", res.Hits[1].Document.ID)
	assert.Equal(t, alias, res.Hits[0].Alias)

	res, err = e.Search(ctx, engine.SearchRequest{
		Aliases: []string{alias},
		Query:   engine.Query{Text: "shepherd naps"},
		Size:    10,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "fido", res.Hits[0].Document.ID, "two matched tokens score higher")

	res, err = e.Search(ctx, engine.SearchRequest{
		Aliases: []string{alias},
		Sort:    []engine.SortField{{Field: "age", Descending: true}},
		From:    1,
		Size:    1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "spot", res.Hits[0].Document.ID)
	assert.EqualValues(t, 5, res.Hits[0].Document.Source["age"])

	res, err = e.Search(ctx, engine.SearchRequest{Aliases: []string{alias}, Query: engine.Query{IDs: []string{"rex"}}, Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
}

func testSearchSkipsMissing(t *testing.T, e engine.Engine) {
	alias := mustCreate(t, e, "acme", "dog")
	seedDogs(t, e, alias)

	res, err := e.Search(context.Background(), engine.SearchRequest{Aliases: []string{"acme-ghost", alias}, Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
}

func testDeleteByQuery(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	dogs := mustCreate(t, e, "acme", "dog")
	other := mustCreate(t, e, "other", "dog")
	seedDogs(t, e, dogs)
	seedDogs(t, e, other)

	n, err := e.DeleteByQuery(ctx, []string{dogs}, engine.Query{Terms: map[string][]interface{}{"owner": {"u1"}}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = e.DeleteByQuery(ctx, []string{dogs, "acme-ghost"}, engine.Query{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	res, err := e.Search(ctx, engine.SearchRequest{Aliases: []string{other}, Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total, "other tenants are untouched")
}

func testConcurrentCAS(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	alias := mustCreate(t, e, "acme", "dog")
	doc, err := e.Index(ctx, alias, engine.Document{ID: "rex", Source: map[string]interface{}{"age": 1}}, engine.WriteOptions{})
	require.NoError(t, err)

	const writers = 8
	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Index(ctx, alias, engine.Document{ID: "rex", Source: map[string]interface{}{"age": i}},
				engine.WriteOptions{Version: doc.Version})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case assert.ErrorIs(t, err, engine.ErrVersionConflict, fmt.Sprintf("writer %d", i)):
				atomic.AddInt32(&conflicts, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, writers-1, conflicts)

	got, err := e.Get(ctx, alias, "rex")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)
}

func testSourceIsolation(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	alias := mustCreate(t, e, "acme", "dog")
	source := map[string]interface{}{"name": "rex"}
	_, err := e.Index(ctx, alias, engine.Document{ID: "rex", Source: source}, engine.WriteOptions{})
	require.NoError(t, err)
	source["name"] = "mutated"

	got, err := e.Get(ctx, alias, "rex")
	require.NoError(t, err)
	got.Source["name"] = "also mutated"

	again, err := e.Get(ctx, alias, "rex")
	require.NoError(t, err)
	assert.Equal(t, "rex", again.Source["name"])
}
