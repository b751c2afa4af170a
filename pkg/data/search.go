package data

import (
	"context"
	"sort"
	"time"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/tenant"
)

const (
	// MaxSearchWindow bounds from + size of a search
	MaxSearchWindow = 1000
	// DefaultSearchSize is the page size of searches asking for none
	DefaultSearchSize = 10
)

// SearchRequest is a paged search over one or more types
type SearchRequest struct {
	// Types restricts the search, every searchable type when empty
	Types []string
	// Q is a query string of field:value filters and free text
	Q     string
	Terms map[string][]interface{}
	From  int
	// Size is the page size, DefaultSearchSize when zero
	Size int
	Sort []engine.SortField
	// Refresh makes pending writes visible before searching
	Refresh bool
}

// SearchResult is a page of objects and the total match count
type SearchResult struct {
	Took    int64     `json:"took"`
	Total   int64     `json:"total"`
	Results []*Object `json:"results"`
}

// CheckWindow validates the paging of a search
func CheckWindow(from, size int) error {
	if from < 0 || size < 0 {
		return errs.InvalidParameter("from and size must not be negative")
	}
	if from+size > MaxSearchWindow {
		return errs.Validation(errs.CodeSearchWindowExceeded, "from + size must be less than or equal to %d", MaxSearchWindow)
	}
	return nil
}

// Search runs a query over the types the subject may search
func (s *Store) Search(ctx context.Context, tenantID string, req SearchRequest, subject acl.Subject) (res *SearchResult, err error) {
	ctx, end := s.start(ctx, "Search", tenantID, "")
	defer end(&err)

	if req.Size == 0 {
		req.Size = DefaultSearchSize
	}
	if err := CheckWindow(req.From, req.Size); err != nil {
		return nil, err
	}
	for _, typ := range req.Types {
		if err := checkType(typ); err != nil {
			return nil, err
		}
	}

	allowed, err := s.evaluator.Types(ctx, tenantID, subject, acl.Search)
	if err != nil {
		return nil, err
	}
	types := allowed
	if len(req.Types) > 0 {
		types = intersect(allowed, req.Types)
	}
	if len(types) == 0 {
		return &SearchResult{Results: []*Object{}}, nil
	}

	aliases := make([]string, len(types))
	for i, typ := range types {
		aliases[i] = alias(tenantID, typ)
	}
	if req.Refresh {
		if err := s.engine.Refresh(ctx, aliases...); err != nil {
			return nil, translate(err, "", "")
		}
	}

	start := time.Now()
	found, err := s.engine.Search(ctx, engine.SearchRequest{
		Aliases: aliases,
		Query:   withTerms(ParseQuery(req.Q), req.Terms),
		From:    req.From,
		Size:    req.Size,
		Sort:    req.Sort,
	})
	if err != nil {
		return nil, translate(err, "", "")
	}
	took := found.Took
	if took == 0 {
		took = time.Since(start)
	}

	res = &SearchResult{
		Took:    took.Milliseconds(),
		Total:   found.Total,
		Results: make([]*Object, 0, len(found.Hits)),
	}
	for _, hit := range found.Hits {
		_, typ, _ := tenant.ParseAlias(hit.Alias)
		o := fromDocument(typ, hit.Document)
		o.Score = hit.Score
		o.Sort = hit.Sort
		res.Results = append(res.Results, o)
	}
	return res, nil
}

func intersect(allowed, wanted []string) []string {
	set := make(map[string]bool, len(allowed))
	for _, typ := range allowed {
		set[typ] = true
	}
	var out []string
	seen := make(map[string]bool, len(wanted))
	for _, typ := range wanted {
		if set[typ] && !seen[typ] {
			seen[typ] = true
			out = append(out, typ)
		}
	}
	sort.Strings(out)
	return out
}
