package storage

import (
	"fmt"
	"strings"
)

// Dialect abstracts the SQL syntax differences between the embedded SQLite
// store and PostgreSQL. Queries in this package are written with SQLite-style
// ? placeholders and converted at execution time for PostgreSQL, so the same
// statements serve both backends.
type Dialect interface {
	// Name returns the dialect name ("sqlite" or "postgres").
	Name() string

	// TimestampType returns the column type used for timestamps.
	TimestampType() string

	// BoolType returns the column type used for booleans.
	BoolType() string

	// CurrentTimestamp returns the SQL expression for the current time.
	CurrentTimestamp() string

	// UpsertConflict returns the upsert clause for the given key columns.
	UpsertConflict(conflictColumns []string) string
}

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) Name() string          { return "sqlite" }
func (d *SQLiteDialect) TimestampType() string { return "DATETIME" }
func (d *SQLiteDialect) BoolType() string      { return "INTEGER" }
func (d *SQLiteDialect) CurrentTimestamp() string {
	return "CURRENT_TIMESTAMP"
}

func (d *SQLiteDialect) UpsertConflict(conflictColumns []string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET", strings.Join(conflictColumns, ", "))
}

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

func (d *PostgresDialect) Name() string          { return "postgres" }
func (d *PostgresDialect) TimestampType() string { return "TIMESTAMPTZ" }
func (d *PostgresDialect) BoolType() string      { return "BOOLEAN" }
func (d *PostgresDialect) CurrentTimestamp() string {
	return "NOW()"
}

func (d *PostgresDialect) UpsertConflict(conflictColumns []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET", strings.Join(conflictColumns, ", "))
}

// ConvertPlaceholders rewrites SQLite-style ? placeholders into PostgreSQL
// $1, $2, ... placeholders. Question marks inside single-quoted literals are
// left alone.
func ConvertPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inLiteral := false
	for _, r := range query {
		switch {
		case r == '\'':
			inLiteral = !inLiteral
			b.WriteRune(r)
		case r == '?' && !inLiteral:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// inPlaceholders returns a comma-separated list of n ? placeholders, for
// building IN (...) clauses.
func inPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
