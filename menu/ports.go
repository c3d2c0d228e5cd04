package menu

import (
	"context"

	"erpgate/server/catalog"
	"erpgate/server/storage"
	"erpgate/server/tenancy"
)

// The aggregator joins catalog data (always central) with authorization data
// (possibly in a dedicated store). That join can never be a database join, so
// each side is a port fetched independently and merged in memory.

// CatalogPort provides the tenant's catalog slice. Satisfied by
// catalog.Accessor.
type CatalogPort interface {
	Slice(ctx context.Context, tenantID string, moduleIDs []string) (*catalog.Slice, error)
	MaxDepth() int
}

// AuthorizationPort provides roles and grants. Satisfied by authz.Accessor.
type AuthorizationPort interface {
	EffectiveRoles(ctx context.Context, tc tenancy.TenantContext, userID string) ([]*storage.Role, error)
	Grants(ctx context.Context, tc tenancy.TenantContext, roleIDs []string) (map[string]storage.PermissionFlags, error)
}

// EntitlementPort provides the tenant's active module set. Satisfied by
// entitlement.Gate.
type EntitlementPort interface {
	ActiveModules(ctx context.Context, tenantID string) ([]string, error)
}
