package data

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/platinummonkey/kennel/pkg/engine"
)

// idFilter selects object ids in a query string
const idFilter = "_id"

// filterPattern matches field:value and field:"quoted value"
var filterPattern = regexp.MustCompile(`([\w.-]+):("([^"]*)"|(\S+))`)

// ParseQuery splits a query string into term filters and free text.
// Repeated filters on one field match any of their values and _id filters
// select ids.
func ParseQuery(q string) engine.Query {
	var query engine.Query
	for _, match := range filterPattern.FindAllStringSubmatch(q, -1) {
		field := match[1]
		value := match[3]
		if !strings.HasPrefix(match[2], `"`) {
			value = match[4]
		}
		if field == idFilter {
			query.IDs = append(query.IDs, value)
			continue
		}
		if query.Terms == nil {
			query.Terms = make(map[string][]interface{})
		}
		query.Terms[field] = append(query.Terms[field], value)
	}
	query.Text = strings.Join(strings.Fields(filterPattern.ReplaceAllString(q, " ")), " ")
	return query
}

// withTerms adds term filters to q, intersecting on fields present in both
func withTerms(q engine.Query, terms map[string][]interface{}) engine.Query {
	if len(terms) == 0 {
		return q
	}
	out := engine.Query{Text: q.Text, IDs: q.IDs, Terms: make(map[string][]interface{}, len(q.Terms)+len(terms))}
	for field, values := range q.Terms {
		out.Terms[field] = values
	}
	for field, values := range terms {
		existing, ok := out.Terms[field]
		if !ok {
			out.Terms[field] = values
			continue
		}
		var both []interface{}
		for _, a := range existing {
			for _, b := range values {
				if fmt.Sprint(a) == fmt.Sprint(b) {
					both = append(both, a)
				}
			}
		}
		if both == nil {
			both = []interface{}{}
		}
		out.Terms[field] = both
	}
	return out
}
