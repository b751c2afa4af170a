// Package memory is a thread-safe in-process implementation of engine.Engine.
// It backs tests and single-node deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/kennel/pkg/engine"
)

type index struct {
	name    string
	alias   string
	mapping engine.Mapping
	docs    map[string]engine.Document
}

// Engine stores every index in memory behind one RWMutex. Sources are deep
// copied on the way in and out so callers never share maps with the store.
type Engine struct {
	mu      sync.RWMutex
	indices map[string]*index // by physical name
	aliases map[string]string // alias -> physical name
}

var _ engine.Engine = (*Engine)(nil)

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		indices: make(map[string]*index),
		aliases: make(map[string]string),
	}
}

// resolve must be called while holding e.mu.
func (e *Engine) resolve(alias string) (*index, error) {
	name, ok := e.aliases[alias]
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", engine.ErrIndexNotFound, alias)
	}
	return e.indices[name], nil
}

func (e *Engine) CreateIndex(ctx context.Context, name, alias string, mapping engine.Mapping) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indices[name]; ok {
		return fmt.Errorf("%w: [%s]", engine.ErrIndexExists, name)
	}
	if _, ok := e.aliases[alias]; ok {
		return fmt.Errorf("%w: alias [%s]", engine.ErrIndexExists, alias)
	}
	e.indices[name] = &index{
		name:    name,
		alias:   alias,
		mapping: mapping,
		docs:    make(map[string]engine.Document),
	}
	e.aliases[alias] = name
	return nil
}

func (e *Engine) PutMapping(ctx context.Context, alias string, mapping engine.Mapping) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.resolve(alias)
	if err != nil {
		return err
	}
	merged, err := idx.mapping.Merge(mapping)
	if err != nil {
		return err
	}
	idx.mapping = merged
	return nil
}

func (e *Engine) Exists(ctx context.Context, alias string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.aliases[alias]
	return ok, nil
}

func (e *Engine) GetMapping(ctx context.Context, alias string) (engine.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return engine.Mapping{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, err := e.resolve(alias)
	if err != nil {
		return engine.Mapping{}, err
	}
	return idx.mapping, nil
}

func (e *Engine) ListIndices(ctx context.Context, prefix string) ([]engine.IndexInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []engine.IndexInfo
	for name, idx := range e.indices {
		if strings.HasPrefix(name, prefix) {
			out = append(out, engine.IndexInfo{Name: name, Alias: idx.alias})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e *Engine) DeleteIndex(ctx context.Context, alias string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.resolve(alias)
	if err != nil {
		return err
	}
	delete(e.aliases, alias)
	delete(e.indices, idx.name)
	return nil
}

func (e *Engine) Index(ctx context.Context, alias string, doc engine.Document, opts engine.WriteOptions) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return engine.Document{}, err
	}
	source, err := engine.Normalize(doc.Source)
	if err != nil {
		return engine.Document{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.resolve(alias)
	if err != nil {
		return engine.Document{}, err
	}
	if err := engine.ValidateSource(idx.mapping, source); err != nil {
		return engine.Document{}, err
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	current, exists := idx.docs[id]
	switch {
	case exists && opts.CreateOnly:
		return engine.Document{}, fmt.Errorf("%w: [%s]", engine.ErrDocumentExists, id)
	case opts.Version != engine.MatchAnyVersion && (!exists || current.Version != opts.Version):
		return engine.Document{}, fmt.Errorf("%w: [%s] expected version [%d]", engine.ErrVersionConflict, id, opts.Version)
	}

	stored := engine.Document{ID: id, Version: current.Version + 1, Source: source}
	idx.docs[id] = stored
	return engine.CopyDocument(stored), nil
}

func (e *Engine) Get(ctx context.Context, alias, id string) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return engine.Document{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, err := e.resolve(alias)
	if err != nil {
		return engine.Document{}, err
	}
	doc, ok := idx.docs[id]
	if !ok {
		return engine.Document{}, fmt.Errorf("%w: [%s]", engine.ErrDocumentNotFound, id)
	}
	return engine.CopyDocument(doc), nil
}

func (e *Engine) Delete(ctx context.Context, alias, id string, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.resolve(alias)
	if err != nil {
		return err
	}
	doc, ok := idx.docs[id]
	if !ok {
		return fmt.Errorf("%w: [%s]", engine.ErrDocumentNotFound, id)
	}
	if version != engine.MatchAnyVersion && doc.Version != version {
		return fmt.Errorf("%w: [%s] expected version [%d]", engine.ErrVersionConflict, id, version)
	}
	delete(idx.docs, id)
	return nil
}

// matching must be called while holding e.mu. Unknown aliases are skipped.
func (e *Engine) matching(aliases []string, q engine.Query) []engine.Hit {
	var hits []engine.Hit
	for _, alias := range aliases {
		idx, err := e.resolve(alias)
		if err != nil {
			continue
		}
		for _, doc := range idx.docs {
			if ok, score := engine.Match(doc, q); ok {
				hits = append(hits, engine.Hit{Alias: alias, Document: doc, Score: score})
			}
		}
	}
	return hits
}

func (e *Engine) Search(ctx context.Context, req engine.SearchRequest) (*engine.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	e.mu.RLock()
	hits := e.matching(req.Aliases, req.Query)
	e.mu.RUnlock()

	engine.SortHits(hits, req.Sort)
	page := engine.Page(hits, req.From, req.Size)
	for i := range page {
		page[i].Document = engine.CopyDocument(page[i].Document)
	}
	return &engine.SearchResult{
		Took:  time.Since(start),
		Total: int64(len(hits)),
		Hits:  page,
	}, nil
}

func (e *Engine) DeleteByQuery(ctx context.Context, aliases []string, q engine.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var deleted int64
	for _, hit := range e.matching(aliases, q) {
		idx, _ := e.resolve(hit.Alias)
		delete(idx.docs, hit.Document.ID)
		deleted++
	}
	return deleted, nil
}

// Refresh is a no-op: writes are visible as soon as they return.
func (e *Engine) Refresh(ctx context.Context, aliases ...string) error {
	return ctx.Err()
}

func (e *Engine) Close() error {
	return nil
}
