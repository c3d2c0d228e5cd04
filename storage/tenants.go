package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by all store backends.
var (
	ErrNotFound = errors.New("not found")
	// ErrStorageModeImmutable is returned when an upsert tries to change a
	// tenant's storage mode. Mode migration is an external operation.
	ErrStorageModeImmutable = errors.New("tenant storage mode is immutable")
)

// ListActiveTenants returns every active tenant, ordered by subdomain. The
// tenancy directory cache is built from this.
func (s *BaseStore) ListActiveTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, subdomain, name, storage_mode, active, created_at
		FROM tenants
		WHERE active = ?
		ORDER BY subdomain`, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetTenant looks up a tenant by id.
func (s *BaseStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := s.queryRowContext(ctx, `
		SELECT id, subdomain, name, storage_mode, active, created_at
		FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return t, err
}

// UpsertTenant inserts or updates a tenant. The storage mode of an existing
// tenant cannot be changed.
func (s *BaseStore) UpsertTenant(ctx context.Context, t *Tenant) error {
	if !t.StorageMode.Valid() {
		return fmt.Errorf("invalid storage mode %q", t.StorageMode)
	}
	existing, err := s.GetTenant(ctx, t.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.StorageMode != t.StorageMode {
		return fmt.Errorf("tenant %s: %w", t.ID, ErrStorageModeImmutable)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err = s.execContext(ctx, `
		INSERT INTO tenants (id, subdomain, name, storage_mode, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		`+s.dialect.UpsertConflict([]string{"id"})+`
			subdomain = excluded.subdomain,
			name = excluded.name,
			active = excluded.active`,
		t.ID, t.Subdomain, t.Name, string(t.StorageMode), t.Active, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant %s: %w", t.ID, err)
	}
	return nil
}

// GetConnectionMetadata returns the dedicated-store coordinates for a tenant.
func (s *BaseStore) GetConnectionMetadata(ctx context.Context, tenantID string) (*ConnectionMetadata, error) {
	row := s.queryRowContext(ctx, `
		SELECT tenant_id, host, port, db_name, encrypted_credentials, updated_at
		FROM tenant_connections WHERE tenant_id = ?`, tenantID)

	m := &ConnectionMetadata{}
	err := row.Scan(&m.TenantID, &m.Host, &m.Port, &m.DBName, &m.EncryptedCredentials, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("connection metadata for tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read connection metadata: %w", err)
	}
	return m, nil
}

// UpsertConnectionMetadata stores or replaces a tenant's dedicated-store
// coordinates.
func (s *BaseStore) UpsertConnectionMetadata(ctx context.Context, m *ConnectionMetadata) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	_, err := s.execContext(ctx, `
		INSERT INTO tenant_connections (tenant_id, host, port, db_name, encrypted_credentials, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		`+s.dialect.UpsertConflict([]string{"tenant_id"})+`
			host = excluded.host,
			port = excluded.port,
			db_name = excluded.db_name,
			encrypted_credentials = excluded.encrypted_credentials,
			updated_at = excluded.updated_at`,
		m.TenantID, m.Host, m.Port, m.DBName, m.EncryptedCredentials, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert connection metadata for %s: %w", m.TenantID, err)
	}
	return nil
}

// rowScanner lets scanTenant work with both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(r rowScanner) (*Tenant, error) {
	t := &Tenant{}
	var mode string
	if err := r.Scan(&t.ID, &t.Subdomain, &t.Name, &mode, &t.Active, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	t.StorageMode = StorageMode(mode)
	return t, nil
}
