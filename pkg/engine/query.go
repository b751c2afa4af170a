package engine

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Match evaluates a query against a document and returns its relevance score
func Match(doc Document, q Query) (bool, float64) {
	if len(q.IDs) > 0 && !containsString(q.IDs, doc.ID) {
		return false, 0
	}

	for field, values := range q.Terms {
		if !matchTerms(Lookup(doc.Source, field), values) {
			return false, 0
		}
	}

	tokens := queryTokens(q.Text)
	if len(tokens) == 0 {
		return true, 1
	}

	words := make(map[string]bool)
	collectWords(doc.Source, words)

	var score float64
	for _, token := range tokens {
		if matchToken(token, words) {
			score++
		}
	}
	if score == 0 {
		return false, 0
	}
	return true, score
}

func matchTerms(found []interface{}, wanted []interface{}) bool {
	for _, f := range found {
		for _, w := range wanted {
			if termEqual(f, w) {
				return true
			}
		}
	}
	return false
}

func termEqual(a, b interface{}) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func queryTokens(text string) []string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(text)) {
		words := splitWords(strings.TrimSuffix(field, "*"))
		if len(words) == 0 {
			continue
		}
		if strings.HasSuffix(field, "*") {
			words[len(words)-1] += "*"
		}
		tokens = append(tokens, words...)
	}
	return tokens
}

func matchToken(token string, words map[string]bool) bool {
	if strings.HasSuffix(token, "*") {
		prefix := strings.TrimSuffix(token, "*")
		for w := range words {
			if strings.HasPrefix(w, prefix) {
				return true
			}
		}
		return false
	}
	return words[token]
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func collectWords(value interface{}, words map[string]bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		for _, child := range v {
			collectWords(child, words)
		}
	case []interface{}:
		for _, child := range v {
			collectWords(child, words)
		}
	case string:
		for _, w := range splitWords(strings.ToLower(v)) {
			words[w] = true
		}
	}
}

// SortHits orders hits by the requested fields, falling back to score then
// id so that pagination is stable. Sort values are recorded on each hit.
func SortHits(hits []Hit, fields []SortField) {
	for i := range hits {
		if len(fields) == 0 {
			continue
		}
		values := make([]interface{}, len(fields))
		for j, f := range fields {
			if found := Lookup(hits[i].Document.Source, f.Field); len(found) > 0 {
				values[j] = found[0]
			}
		}
		hits[i].Sort = values
	}

	sort.SliceStable(hits, func(a, b int) bool {
		for j, f := range fields {
			va, vb := hits[a].Sort[j], hits[b].Sort[j]
			c := compareValues(va, vb)
			if c == 0 {
				continue
			}
			if f.Descending && va != nil && vb != nil {
				return c > 0
			}
			return c < 0
		}
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Document.ID < hits[b].Document.ID
	})
}

// compareValues orders missing values last, numbers numerically and
// everything else by its string form
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	fa, aok := a.(float64)
	fb, bok := b.(float64)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Page returns the hits in [from, from+size)
func Page(hits []Hit, from, size int) []Hit {
	if from < 0 {
		from = 0
	}
	if from >= len(hits) || size <= 0 {
		return []Hit{}
	}
	end := from + size
	if end > len(hits) {
		end = len(hits)
	}
	return hits[from:end]
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
