package engine

import (
	"context"
	"errors"
	"time"
)

// Engine errors
var (
	ErrIndexNotFound    = errors.New("index not found")
	ErrIndexExists      = errors.New("index already exists")
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
	ErrVersionConflict  = errors.New("version conflict")
	ErrMappingConflict  = errors.New("mapping conflict")
	ErrStrictMapping    = errors.New("strict mapping violation")
)

// MatchAnyVersion disables the version check of a write
const MatchAnyVersion int64 = 0

// Engine is the document storage engine every tenant type is stored in.
// Indices are always addressed through their alias.
type Engine interface {
	// CreateIndex creates the physical index name reachable through alias
	CreateIndex(ctx context.Context, name, alias string, mapping Mapping) error
	// PutMapping merges mapping into the index behind alias
	PutMapping(ctx context.Context, alias string, mapping Mapping) error
	// Exists reports whether alias points at an index
	Exists(ctx context.Context, alias string) (bool, error)
	// GetMapping returns the mapping of the index behind alias
	GetMapping(ctx context.Context, alias string) (Mapping, error)
	// ListIndices lists the indices whose physical name starts with prefix
	ListIndices(ctx context.Context, prefix string) ([]IndexInfo, error)
	// DeleteIndex drops the index behind alias and every document in it
	DeleteIndex(ctx context.Context, alias string) error

	// Index writes a document and returns it with its new version
	Index(ctx context.Context, alias string, doc Document, opts WriteOptions) (Document, error)
	// Get reads a document
	Get(ctx context.Context, alias, id string) (Document, error)
	// Delete removes a document, checking version when it is not MatchAnyVersion
	Delete(ctx context.Context, alias, id string, version int64) error

	// Search runs a query over one or more aliases
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	// DeleteByQuery removes every matching document and returns the count
	DeleteByQuery(ctx context.Context, aliases []string, query Query) (int64, error)
	// Refresh makes recent writes visible to search
	Refresh(ctx context.Context, aliases ...string) error

	Close() error
}

// IndexInfo describes a physical index
type IndexInfo struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

// Document is a stored source with its id and version
type Document struct {
	ID      string                 `json:"id"`
	Version int64                  `json:"version"`
	Source  map[string]interface{} `json:"source"`
}

// WriteOptions controls the concurrency checks of Index
type WriteOptions struct {
	// Version must equal the stored version unless it is MatchAnyVersion
	Version int64
	// CreateOnly fails if a document with the same id exists
	CreateOnly bool
}

// Query selects documents
type Query struct {
	// Text is a simple query string matched against every string value
	Text string `json:"text,omitempty"`
	// Terms requires, for each field path, one of the listed values
	Terms map[string][]interface{} `json:"terms,omitempty"`
	// IDs restricts the match to the listed document ids
	IDs []string `json:"ids,omitempty"`
}

// IsEmpty reports whether the query matches every document
func (q Query) IsEmpty() bool {
	return q.Text == "" && len(q.Terms) == 0 && len(q.IDs) == 0
}

// SortField orders search hits on a field path
type SortField struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// SearchRequest is a paged search over aliases
type SearchRequest struct {
	Aliases []string
	Query   Query
	From    int
	Size    int
	Sort    []SortField
}

// Hit is one search result
type Hit struct {
	Alias    string
	Document Document
	Score    float64
	Sort     []interface{}
}

// SearchResult is a page of hits and the total match count
type SearchResult struct {
	Took  time.Duration
	Total int64
	Hits  []Hit
}
