package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func doc(id string, source map[string]interface{}) Document {
	src, _ := Normalize(source)
	return Document{ID: id, Version: 1, Source: src}
}

func TestMatchText(t *testing.T) {
	d := doc("1", map[string]interface{}{
		"name":  "Rex the Dog",
		"notes": []interface{}{"likes bones", "barks loudly"},
		"age":   4,
	})

	tests := []struct {
		name  string
		text  string
		match bool
		score float64
	}{
		{"empty matches all", "", true, 1},
		{"single word", "rex", true, 1},
		{"case insensitive", "DOG", true, 1},
		{"or semantics", "rex cat", true, 1},
		{"scored by matches", "rex dog bones", true, 3},
		{"prefix", "bark*", true, 1},
		{"no match", "cat", false, 0},
		{"star alone", "*", true, 1},
		{"numbers are not text", "4", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, score := Match(d, Query{Text: tt.text})
			assert.Equal(t, tt.match, ok)
			assert.Equal(t, tt.score, score)
		})
	}
}

func TestMatchTermsAndIDs(t *testing.T) {
	d := doc("abc", map[string]interface{}{
		"owner": "u1",
		"tags":  []interface{}{"a", "b"},
		"pet":   map[string]interface{}{"kind": "dog", "legs": 4},
	})

	ok, _ := Match(d, Query{Terms: map[string][]interface{}{"owner": {"u1"}}})
	assert.True(t, ok)

	ok, _ = Match(d, Query{Terms: map[string][]interface{}{"tags": {"b"}}})
	assert.True(t, ok, "arrays match any element")

	ok, _ = Match(d, Query{Terms: map[string][]interface{}{"pet.legs": {4.0}}})
	assert.True(t, ok)

	ok, _ = Match(d, Query{Terms: map[string][]interface{}{"pet.kind": {"cat"}}})
	assert.False(t, ok)

	ok, _ = Match(d, Query{Terms: map[string][]interface{}{"missing": {"x"}}})
	assert.False(t, ok)

	ok, _ = Match(d, Query{IDs: []string{"zzz"}})
	assert.False(t, ok)

	ok, _ = Match(d, Query{IDs: []string{"zzz", "abc"}, Terms: map[string][]interface{}{"owner": {"u1", "u2"}}})
	assert.True(t, ok)
}

func TestSortHits(t *testing.T) {
	hits := []Hit{
		{Document: doc("c", map[string]interface{}{"age": 3})},
		{Document: doc("a", map[string]interface{}{"age": 10})},
		{Document: doc("b", map[string]interface{}{})},
		{Document: doc("d", map[string]interface{}{"age": 3})},
	}

	SortHits(hits, []SortField{{Field: "age"}})
	assert.Equal(t, []string{"c", "d", "a", "b"}, ids(hits))
	assert.Equal(t, []interface{}{3.0}, hits[0].Sort)

	SortHits(hits, []SortField{{Field: "age", Descending: true}})
	assert.Equal(t, []string{"a", "c", "d", "b"}, ids(hits), "missing values stay last")
}

func TestSortHitsByScore(t *testing.T) {
	hits := []Hit{
		{Document: doc("b", nil), Score: 1},
		{Document: doc("a", nil), Score: 1},
		{Document: doc("c", nil), Score: 2},
	}
	SortHits(hits, nil)
	assert.Equal(t, []string{"c", "a", "b"}, ids(hits))
}

func TestPage(t *testing.T) {
	hits := make([]Hit, 5)
	for i := range hits {
		hits[i].Document.ID = string(rune('a' + i))
	}
	assert.Equal(t, []string{"b", "c"}, ids(Page(hits, 1, 2)))
	assert.Equal(t, []string{"d", "e"}, ids(Page(hits, 3, 10)))
	assert.Empty(t, Page(hits, 5, 2))
	assert.Empty(t, Page(hits, 0, 0))
	assert.Equal(t, []string{"a"}, ids(Page(hits, -3, 1)))
}

func TestLookup(t *testing.T) {
	src, _ := Normalize(map[string]interface{}{
		"a": []interface{}{
			map[string]interface{}{"b": 1},
			map[string]interface{}{"b": []interface{}{2, 3}},
		},
	})
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, Lookup(src, "a.b"))
	assert.Nil(t, Lookup(src, ""))
	assert.Nil(t, Lookup(src, "a.c"))
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Document.ID
	}
	return out
}
