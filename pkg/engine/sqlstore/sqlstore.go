// Package sqlstore implements engine.Engine on top of database/sql. Mappings
// and documents are stored as JSON text; queries are evaluated in process
// with the engine package matchers after the candidate rows are loaded.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/kennel/pkg/engine"
)

// Config configures the SQL connection.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// Engine is a SQL-backed document engine.
type Engine struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ engine.Engine = (*Engine)(nil)

// Open connects, pings and bootstraps the schema.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.Name, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect.Name, err)
	}

	if dialect == SQLite {
		// One connection keeps a :memory: database alive and serializes
		// writers, which sqlite requires anyway.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect.Name, err)
	}

	e := New(db, dialect)
	if err := e.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// New wraps an open database. The schema is not bootstrapped.
func New(db *sql.DB, dialect Dialect) *Engine {
	return &Engine{db: db, dialect: dialect, now: time.Now}
}

// DB exposes the pool for health checks.
func (e *Engine) DB() *sql.DB {
	return e.db
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS engine_indices (
		name       TEXT PRIMARY KEY,
		alias      TEXT NOT NULL UNIQUE,
		mapping    TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS engine_documents (
		index_name TEXT NOT NULL,
		id         TEXT NOT NULL,
		version    BIGINT NOT NULL,
		source     TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (index_name, id)
	)`,
}

// Migrate creates the tables when missing.
func (e *Engine) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate engine schema: %w", err)
		}
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (e *Engine) queryRow(ctx context.Context, q querier, query string, args ...interface{}) *sql.Row {
	return q.QueryRowContext(ctx, e.dialect.Rebind(query), args...)
}

func (e *Engine) exec(ctx context.Context, q querier, query string, args ...interface{}) (sql.Result, error) {
	return q.ExecContext(ctx, e.dialect.Rebind(query), args...)
}

// resolve returns the physical index name and mapping behind alias.
func (e *Engine) resolve(ctx context.Context, q querier, alias string, lock bool) (string, engine.Mapping, error) {
	query := `SELECT name, mapping FROM engine_indices WHERE alias = ?`
	if lock {
		query += e.dialect.lockClause
	}
	var name, raw string
	err := e.queryRow(ctx, q, query, alias).Scan(&name, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", engine.Mapping{}, fmt.Errorf("%w: [%s]", engine.ErrIndexNotFound, alias)
	}
	if err != nil {
		return "", engine.Mapping{}, fmt.Errorf("failed to resolve alias %s: %w", alias, err)
	}
	var m engine.Mapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return "", engine.Mapping{}, fmt.Errorf("corrupt mapping for %s: %w", alias, err)
	}
	return name, m, nil
}

func (e *Engine) CreateIndex(ctx context.Context, name, alias string, mapping engine.Mapping) error {
	raw, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	_, err = e.exec(ctx, e.db,
		`INSERT INTO engine_indices (name, alias, mapping, created_at) VALUES (?, ?, ?, ?)`,
		name, alias, string(raw), e.now().UnixMilli())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: [%s]", engine.ErrIndexExists, name)
	}
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	return nil
}

func (e *Engine) PutMapping(ctx context.Context, alias string, mapping engine.Mapping) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	name, current, err := e.resolve(ctx, tx, alias, true)
	if err != nil {
		return err
	}
	merged, err := current.Merge(mapping)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	if _, err := e.exec(ctx, tx, `UPDATE engine_indices SET mapping = ? WHERE name = ?`, string(raw), name); err != nil {
		return fmt.Errorf("failed to update mapping of %s: %w", alias, err)
	}
	return tx.Commit()
}

func (e *Engine) Exists(ctx context.Context, alias string) (bool, error) {
	var one int
	err := e.queryRow(ctx, e.db, `SELECT 1 FROM engine_indices WHERE alias = ?`, alias).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check alias %s: %w", alias, err)
	}
	return true, nil
}

func (e *Engine) GetMapping(ctx context.Context, alias string) (engine.Mapping, error) {
	_, m, err := e.resolve(ctx, e.db, alias, false)
	return m, err
}

func (e *Engine) ListIndices(ctx context.Context, prefix string) ([]engine.IndexInfo, error) {
	rows, err := e.db.QueryContext(ctx, e.dialect.Rebind(
		`SELECT name, alias FROM engine_indices WHERE name LIKE ? ESCAPE '\' ORDER BY name`),
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}
	defer rows.Close()

	var out []engine.IndexInfo
	for rows.Next() {
		var info engine.IndexInfo
		if err := rows.Scan(&info.Name, &info.Alias); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (e *Engine) DeleteIndex(ctx context.Context, alias string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	name, _, err := e.resolve(ctx, tx, alias, true)
	if err != nil {
		return err
	}
	if _, err := e.exec(ctx, tx, `DELETE FROM engine_documents WHERE index_name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete documents of %s: %w", name, err)
	}
	if _, err := e.exec(ctx, tx, `DELETE FROM engine_indices WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	return tx.Commit()
}

func (e *Engine) Index(ctx context.Context, alias string, doc engine.Document, opts engine.WriteOptions) (engine.Document, error) {
	source, err := engine.Normalize(doc.Source)
	if err != nil {
		return engine.Document{}, err
	}
	name, mapping, err := e.resolve(ctx, e.db, alias, false)
	if err != nil {
		return engine.Document{}, err
	}
	if err := engine.ValidateSource(mapping, source); err != nil {
		return engine.Document{}, err
	}
	raw, err := json.Marshal(source)
	if err != nil {
		return engine.Document{}, fmt.Errorf("failed to encode source: %w", err)
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now().UnixMilli()

	var version int64
	switch {
	case opts.CreateOnly && opts.Version != engine.MatchAnyVersion:
		// A fresh document can never match an expected version.
		return engine.Document{}, fmt.Errorf("%w: [%s] expected version [%d]", engine.ErrVersionConflict, id, opts.Version)
	case opts.CreateOnly:
		res, err := e.exec(ctx, e.db,
			`INSERT INTO engine_documents (index_name, id, version, source, updated_at) VALUES (?, ?, 1, ?, ?)
			 ON CONFLICT (index_name, id) DO NOTHING`,
			name, id, string(raw), now)
		if err != nil {
			return engine.Document{}, fmt.Errorf("failed to create document %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return engine.Document{}, fmt.Errorf("%w: [%s]", engine.ErrDocumentExists, id)
		}
		version = 1
	case opts.Version != engine.MatchAnyVersion:
		res, err := e.exec(ctx, e.db,
			`UPDATE engine_documents SET version = version + 1, source = ?, updated_at = ?
			 WHERE index_name = ? AND id = ? AND version = ?`,
			string(raw), now, name, id, opts.Version)
		if err != nil {
			return engine.Document{}, fmt.Errorf("failed to update document %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return engine.Document{}, fmt.Errorf("%w: [%s] expected version [%d]", engine.ErrVersionConflict, id, opts.Version)
		}
		version = opts.Version + 1
	default:
		err := e.queryRow(ctx, e.db,
			`INSERT INTO engine_documents (index_name, id, version, source, updated_at) VALUES (?, ?, 1, ?, ?)
			 ON CONFLICT (index_name, id) DO UPDATE
			 SET version = engine_documents.version + 1, source = excluded.source, updated_at = excluded.updated_at
			 RETURNING version`,
			name, id, string(raw), now).Scan(&version)
		if err != nil {
			return engine.Document{}, fmt.Errorf("failed to write document %s: %w", id, err)
		}
	}
	return engine.Document{ID: id, Version: version, Source: source}, nil
}

func (e *Engine) Get(ctx context.Context, alias, id string) (engine.Document, error) {
	name, _, err := e.resolve(ctx, e.db, alias, false)
	if err != nil {
		return engine.Document{}, err
	}
	var version int64
	var raw string
	err = e.queryRow(ctx, e.db,
		`SELECT version, source FROM engine_documents WHERE index_name = ? AND id = ?`, name, id).
		Scan(&version, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Document{}, fmt.Errorf("%w: [%s]", engine.ErrDocumentNotFound, id)
	}
	if err != nil {
		return engine.Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return decodeDocument(id, version, raw)
}

func decodeDocument(id string, version int64, raw string) (engine.Document, error) {
	var source map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &source); err != nil {
		return engine.Document{}, fmt.Errorf("corrupt document %s: %w", id, err)
	}
	if source == nil {
		source = map[string]interface{}{}
	}
	return engine.Document{ID: id, Version: version, Source: source}, nil
}

func (e *Engine) Delete(ctx context.Context, alias, id string, version int64) error {
	name, _, err := e.resolve(ctx, e.db, alias, false)
	if err != nil {
		return err
	}
	query := `DELETE FROM engine_documents WHERE index_name = ? AND id = ?`
	args := []interface{}{name, id}
	if version != engine.MatchAnyVersion {
		query += ` AND version = ?`
		args = append(args, version)
	}
	res, err := e.exec(ctx, e.db, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if version == engine.MatchAnyVersion {
		return fmt.Errorf("%w: [%s]", engine.ErrDocumentNotFound, id)
	}

	var current int64
	err = e.queryRow(ctx, e.db,
		`SELECT version FROM engine_documents WHERE index_name = ? AND id = ?`, name, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: [%s]", engine.ErrDocumentNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", id, err)
	}
	return fmt.Errorf("%w: [%s] expected version [%d]", engine.ErrVersionConflict, id, version)
}

// resolveMany maps aliases to physical names, silently dropping unknown ones.
func (e *Engine) resolveMany(ctx context.Context, aliases []string) (map[string]string, error) {
	byName := make(map[string]string, len(aliases))
	if len(aliases) == 0 {
		return byName, nil
	}
	args := make([]interface{}, len(aliases))
	for i, a := range aliases {
		args[i] = a
	}
	rows, err := e.db.QueryContext(ctx, e.dialect.Rebind(
		`SELECT name, alias FROM engine_indices WHERE alias IN (`+placeholders(len(args))+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve aliases: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, alias string
		if err := rows.Scan(&name, &alias); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		byName[name] = alias
	}
	return byName, rows.Err()
}

// candidates loads and filters every matching document of the aliases.
func (e *Engine) candidates(ctx context.Context, aliases []string, q engine.Query) ([]engine.Hit, []string, error) {
	byName, err := e.resolveMany(ctx, aliases)
	if err != nil || len(byName) == 0 {
		return nil, nil, err
	}

	args := make([]interface{}, 0, len(byName)+len(q.IDs))
	for name := range byName {
		args = append(args, name)
	}
	query := `SELECT index_name, id, version, source FROM engine_documents WHERE index_name IN (` +
		placeholders(len(byName)) + `)`
	if len(q.IDs) > 0 {
		query += ` AND id IN (` + placeholders(len(q.IDs)) + `)`
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}

	rows, err := e.db.QueryContext(ctx, e.dialect.Rebind(query), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var hits []engine.Hit
	var names []string
	for rows.Next() {
		var name, id, raw string
		var version int64
		if err := rows.Scan(&name, &id, &version, &raw); err != nil {
			return nil, nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument(id, version, raw)
		if err != nil {
			return nil, nil, err
		}
		if ok, score := engine.Match(doc, q); ok {
			hits = append(hits, engine.Hit{Alias: byName[name], Document: doc, Score: score})
			names = append(names, name)
		}
	}
	return hits, names, rows.Err()
}

func (e *Engine) Search(ctx context.Context, req engine.SearchRequest) (*engine.SearchResult, error) {
	start := time.Now()
	hits, _, err := e.candidates(ctx, req.Aliases, req.Query)
	if err != nil {
		return nil, err
	}
	engine.SortHits(hits, req.Sort)
	return &engine.SearchResult{
		Took:  time.Since(start),
		Total: int64(len(hits)),
		Hits:  engine.Page(hits, req.From, req.Size),
	}, nil
}

func (e *Engine) DeleteByQuery(ctx context.Context, aliases []string, q engine.Query) (int64, error) {
	hits, names, err := e.candidates(ctx, aliases, q)
	if err != nil || len(hits) == 0 {
		return 0, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var deleted int64
	for i, hit := range hits {
		res, err := e.exec(ctx, tx, `DELETE FROM engine_documents WHERE index_name = ? AND id = ?`, names[i], hit.Document.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to delete document %s: %w", hit.Document.ID, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete by query: %w", err)
	}
	return deleted, nil
}

// Refresh is a no-op: committed rows are immediately visible.
func (e *Engine) Refresh(ctx context.Context, aliases ...string) error {
	return ctx.Err()
}

func (e *Engine) Close() error {
	return e.db.Close()
}
