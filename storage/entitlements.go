package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ListEntitlements returns every entitlement row for a tenant, effective or
// not. Filtering to currently-effective entitlements is the activation gate's
// job, not the store's.
func (s *BaseStore) ListEntitlements(ctx context.Context, tenantID string) ([]*ModuleEntitlement, error) {
	rows, err := s.queryContext(ctx, `
		SELECT tenant_id, module_id, active, expires_at, trial, usage_limit, usage_count
		FROM module_entitlements WHERE tenant_id = ?
		ORDER BY module_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlements for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var out []*ModuleEntitlement
	for rows.Next() {
		e := &ModuleEntitlement{}
		var expires sql.NullTime
		if err := rows.Scan(&e.TenantID, &e.ModuleID, &e.Active, &expires, &e.Trial, &e.UsageLimit, &e.UsageCount); err != nil {
			return nil, fmt.Errorf("failed to scan entitlement: %w", err)
		}
		e.ExpiresAt = timePtr(expires)
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertEntitlement inserts or updates a (tenant, module) entitlement.
func (s *BaseStore) UpsertEntitlement(ctx context.Context, e *ModuleEntitlement) error {
	_, err := s.execContext(ctx, `
		INSERT INTO module_entitlements (tenant_id, module_id, active, expires_at, trial, usage_limit, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`+s.dialect.UpsertConflict([]string{"tenant_id", "module_id"})+`
			active = excluded.active, expires_at = excluded.expires_at,
			trial = excluded.trial, usage_limit = excluded.usage_limit,
			usage_count = excluded.usage_count`,
		e.TenantID, e.ModuleID, e.Active, nullTimePtr(e.ExpiresAt), e.Trial, e.UsageLimit, e.UsageCount)
	if err != nil {
		return fmt.Errorf("failed to upsert entitlement %s/%s: %w", e.TenantID, e.ModuleID, err)
	}
	return nil
}
