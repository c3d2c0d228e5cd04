package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

// SQLiteStore implements Store using an embedded SQLite database. It is the
// default central store for development and tests; production deployments use
// PostgreSQL.
type SQLiteStore struct {
	BaseStore
	dbPath string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) a SQLite-backed central store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	connStr := dbPath
	if dbPath != ":memory:" {
		connStr += "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON"
	} else {
		connStr += "?_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// A second connection would see a different empty database.
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{
		BaseStore: BaseStore{db: db, dialect: &SQLiteDialect{}},
		dbPath:    dbPath,
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(centralSchema(s.dialect)); err != nil {
		return err
	}
	_, err := s.db.Exec(authSchema(s.dialect))
	return err
}

// centralSchema renders the central-store tables: tenant directory, dedicated
// store coordinates, vendor catalog, role templates and entitlements.
func centralSchema(d Dialect) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		subdomain TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		storage_mode TEXT NOT NULL DEFAULT 'shared',
		active %[2]s NOT NULL DEFAULT %[3]s,
		created_at %[1]s NOT NULL DEFAULT %[5]s
	);
	CREATE INDEX IF NOT EXISTS idx_tenants_subdomain ON tenants(subdomain);

	CREATE TABLE IF NOT EXISTS tenant_connections (
		tenant_id TEXT PRIMARY KEY,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		db_name TEXT NOT NULL,
		encrypted_credentials BLOB NOT NULL,
		updated_at %[1]s NOT NULL DEFAULT %[5]s
	);

	CREATE TABLE IF NOT EXISTS modules (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		label TEXT NOT NULL,
		icon TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		rank INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS module_sections (
		id TEXT PRIMARY KEY,
		module_id TEXT NOT NULL,
		code TEXT NOT NULL,
		label TEXT NOT NULL,
		rank INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sections_module ON module_sections(module_id);

	CREATE TABLE IF NOT EXISTS menu_nodes (
		id TEXT PRIMARY KEY,
		module_id TEXT NOT NULL,
		section_id TEXT NOT NULL,
		parent_id TEXT,
		owner_tenant_id TEXT,
		code TEXT NOT NULL,
		label TEXT NOT NULL,
		icon TEXT NOT NULL DEFAULT '',
		route TEXT NOT NULL DEFAULT '',
		rank INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_module ON menu_nodes(module_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_owner ON menu_nodes(owner_tenant_id);

	CREATE TABLE IF NOT EXISTS role_templates (
		id TEXT PRIMARY KEY,
		module_id TEXT NOT NULL,
		name TEXT NOT NULL,
		access_level INTEGER NOT NULL DEFAULT 0,
		def_view %[2]s NOT NULL DEFAULT %[4]s,
		def_create %[2]s NOT NULL DEFAULT %[4]s,
		def_edit %[2]s NOT NULL DEFAULT %[4]s,
		def_delete %[2]s NOT NULL DEFAULT %[4]s,
		def_export %[2]s NOT NULL DEFAULT %[4]s,
		def_print %[2]s NOT NULL DEFAULT %[4]s,
		def_approve %[2]s NOT NULL DEFAULT %[4]s
	);
	CREATE INDEX IF NOT EXISTS idx_templates_module ON role_templates(module_id);

	CREATE TABLE IF NOT EXISTS module_entitlements (
		tenant_id TEXT NOT NULL,
		module_id TEXT NOT NULL,
		active %[2]s NOT NULL DEFAULT %[3]s,
		expires_at %[1]s,
		trial %[2]s NOT NULL DEFAULT %[4]s,
		usage_limit INTEGER NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (tenant_id, module_id)
	);
	`, d.TimestampType(), d.BoolType(), boolLiteral(d, true), boolLiteral(d, false), d.CurrentTimestamp())
}
