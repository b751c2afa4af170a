package sqlstore

import (
	"context"
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/engine/enginetest"
)

var dbCounter int64

func newSQLite(t *testing.T) *Engine {
	t.Helper()
	n := atomic.AddInt64(&dbCounter, 1)
	e, err := Open(context.Background(), Config{
		Driver: "sqlite3",
		DSN:    fmt.Sprintf("file:kennel_test_%d?mode=memory&cache=shared", n),
	})
	require.NoError(t, err)
	return e
}

func TestSQLiteConformance(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine { return newSQLite(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	e := newSQLite(t)
	defer e.Close()
	require.NoError(t, e.Migrate(context.Background()))
}

func TestListIndicesEscapesWildcards(t *testing.T) {
	e := newSQLite(t)
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "acme-my_type-0", "acme-my_type", engine.Mapping{}))
	require.NoError(t, e.CreateIndex(ctx, "acme-myxtype-0", "acme-myxtype", engine.Mapping{}))

	infos, err := e.ListIndices(ctx, "acme-my_")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "acme-my_type-0", infos[0].Name)
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y IN (?, ?)`
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)`, Postgres.Rebind(q))
	assert.Equal(t, "?, ?, ?", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	d, err = DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)
	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func newMockEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres), mock
}

func TestPostgresCASConflict(t *testing.T) {
	e, mock := newMockEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, mapping FROM engine_indices WHERE alias = $1`)).
		WithArgs("acme-dog").
		WillReturnRows(sqlmock.NewRows([]string{"name", "mapping"}).AddRow("acme-dog-0", `{"settings":{}}`))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE engine_documents SET version = version + 1`)).
		WithArgs(`{"name":"rex"}`, sqlmock.AnyArg(), "acme-dog-0", "rex", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := e.Index(context.Background(), "acme-dog",
		engine.Document{ID: "rex", Source: map[string]interface{}{"name": "rex"}},
		engine.WriteOptions{Version: 4})
	assert.ErrorIs(t, err, engine.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertReturnsVersion(t *testing.T) {
	e, mock := newMockEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, mapping FROM engine_indices WHERE alias = $1`)).
		WithArgs("acme-dog").
		WillReturnRows(sqlmock.NewRows([]string{"name", "mapping"}).AddRow("acme-dog-0", `{"settings":{}}`))
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (index_name, id) DO UPDATE`)).
		WithArgs("acme-dog-0", "rex", `{}`, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(7)))

	doc, err := e.Index(context.Background(), "acme-dog", engine.Document{ID: "rex"}, engine.WriteOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 7, doc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissingAlias(t *testing.T) {
	e, mock := newMockEngine(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, mapping FROM engine_indices WHERE alias = $1`)).
		WithArgs("acme-ghost").
		WillReturnRows(sqlmock.NewRows([]string{"name", "mapping"}))

	_, err := e.Get(context.Background(), "acme-ghost", "x")
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteDistinguishesConflict(t *testing.T) {
	e, mock := newMockEngine(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, mapping FROM engine_indices WHERE alias = $1`)).
		WithArgs("acme-dog").
		WillReturnRows(sqlmock.NewRows([]string{"name", "mapping"}).AddRow("acme-dog-0", `{}`))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM engine_documents WHERE index_name = $1 AND id = $2 AND version = $3`)).
		WithArgs("acme-dog-0", "rex", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM engine_documents WHERE index_name = $1 AND id = $2`)).
		WithArgs("acme-dog-0", "rex").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(3)))

	err := e.Delete(context.Background(), "acme-dog", "rex", 2)
	assert.ErrorIs(t, err, engine.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
