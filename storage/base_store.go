package storage

import (
	"context"
	"database/sql"
)

// DBHandle bundles a raw database handle with its dialect so callers outside
// this package (the connection router in particular) can run dialect-correct
// queries against whichever physical store they were routed to.
type DBHandle struct {
	DB      *sql.DB
	Dialect Dialect
}

// BaseStore provides shared database operations that work across SQLite and
// PostgreSQL. Entity methods are defined on BaseStore in catalog.go,
// tenants.go and entitlements.go; the sqlite/postgres stores only differ in
// construction and schema bootstrap.
type BaseStore struct {
	db      *sql.DB
	dialect Dialect
}

// DB returns the underlying handle with its dialect.
func (s *BaseStore) DB() DBHandle {
	return DBHandle{DB: s.db, Dialect: s.dialect}
}

// Close closes the database connection.
func (s *BaseStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// query converts SQLite-style ? placeholders to the dialect's format.
func (s *BaseStore) query(q string) string {
	if s.dialect.Name() == "postgres" {
		return ConvertPlaceholders(q)
	}
	return q
}

func (s *BaseStore) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.query(query), args...)
}
