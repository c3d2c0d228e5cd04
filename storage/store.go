package storage

import (
	"fmt"
)

// NewStore creates a Store implementation based on the database config.
// SQLite is the default; PostgreSQL is selected by driver name.
//
// Example:
//
//	cfg := &storage.DatabaseConfig{Driver: "postgres", Host: "localhost", Name: "erpgate"}
//	store, err := storage.NewStore(cfg)
func NewStore(cfg *DatabaseConfig) (Store, error) {
	if cfg == nil {
		cfg = &DatabaseConfig{}
	}

	switch cfg.EffectiveDriver() {
	case "sqlite":
		path := cfg.BuildDSN()
		if path == "" {
			path = "erpgate.db"
		}
		return NewSQLiteStore(path)

	case "postgres":
		return NewPostgresStore(cfg)

	default:
		return nil, fmt.Errorf("unsupported database driver: %q (supported: sqlite, postgres)", cfg.Driver)
	}
}
