package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuthStore reads a tenant's authorization data: roles, user-role assignments
// and menu permission grants. It is deliberately constructed from a DBHandle
// rather than a concrete store, because the same queries run against the
// central store for shared-mode tenants and against a routed dedicated store
// for everyone else.
type AuthStore struct {
	db      DBHandle
	nowFunc func() time.Time
}

// NewAuthStore wraps a routed database handle.
func NewAuthStore(h DBHandle) *AuthStore {
	return &AuthStore{db: h, nowFunc: time.Now}
}

func (a *AuthStore) query(q string) string {
	if a.db.Dialect.Name() == "postgres" {
		return ConvertPlaceholders(q)
	}
	return q
}

// EffectiveRoles returns the roles a user currently holds in a tenant:
// active assignments that have not expired, joined to their role rows.
// Ordered by access level descending so the strongest role comes first.
func (a *AuthStore) EffectiveRoles(ctx context.Context, tenantID, userID string) ([]*Role, error) {
	now := a.nowFunc().UTC()
	rows, err := a.db.DB.QueryContext(ctx, a.query(`
		SELECT r.id, r.tenant_id, r.name, r.access_level
		FROM user_role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		WHERE ra.user_id = ? AND ra.tenant_id = ? AND ra.active = ?
		AND (ra.expires_at IS NULL OR ra.expires_at > ?)
		ORDER BY r.access_level DESC, r.name`),
		userID, tenantID, true, now)
	if err != nil {
		return nil, fmt.Errorf("failed to read effective roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		r := &Role{}
		var roleTenant sql.NullString
		if err := rows.Scan(&r.ID, &roleTenant, &r.Name, &r.AccessLevel); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		r.TenantID = roleTenant.String
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// MaxAccessLevel returns the highest access level across the given roles, or
// zero when the user holds none.
func MaxAccessLevel(roles []*Role) int {
	max := 0
	for _, r := range roles {
		if r.AccessLevel > max {
			max = r.AccessLevel
		}
	}
	return max
}

// Grants returns the permission grants of a tenant restricted to the given
// role set, keyed by menu node id with flags OR-merged across roles
// (most-permissive-wins).
func (a *AuthStore) Grants(ctx context.Context, tenantID string, roleIDs []string) (map[string]PermissionFlags, error) {
	merged := make(map[string]PermissionFlags)
	if len(roleIDs) == 0 {
		return merged, nil
	}
	q := `SELECT node_id, can_view, can_create, can_edit, can_delete, can_export, can_print, can_approve
		FROM menu_permission_grants
		WHERE tenant_id = ? AND role_id IN (` + inPlaceholders(len(roleIDs)) + `)`
	args := append([]interface{}{tenantID}, stringsToAny(roleIDs)...)

	rows, err := a.db.DB.QueryContext(ctx, a.query(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID string
		var f PermissionFlags
		if err := rows.Scan(&nodeID, &f.View, &f.Create, &f.Edit, &f.Delete, &f.Export, &f.Print, &f.Approve); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		merged[nodeID] = merged[nodeID].Or(f)
	}
	return merged, rows.Err()
}

// UpsertRole inserts or updates a role.
func (a *AuthStore) UpsertRole(ctx context.Context, r *Role) error {
	upsert := a.db.Dialect.UpsertConflict([]string{"id"})
	_, err := a.db.DB.ExecContext(ctx, a.query(`
		INSERT INTO roles (id, tenant_id, name, access_level)
		VALUES (?, ?, ?, ?)
		`+upsert+`
			tenant_id = excluded.tenant_id, name = excluded.name,
			access_level = excluded.access_level`),
		r.ID, nullString(r.TenantID), r.Name, r.AccessLevel)
	if err != nil {
		return fmt.Errorf("failed to upsert role %s: %w", r.Name, err)
	}
	return nil
}

// UpsertAssignment inserts or updates a user-role assignment.
func (a *AuthStore) UpsertAssignment(ctx context.Context, ra *UserRoleAssignment) error {
	_, err := a.db.DB.ExecContext(ctx, a.query(`
		INSERT INTO user_role_assignments (user_id, role_id, tenant_id, active, expires_at)
		VALUES (?, ?, ?, ?, ?)
		`+a.db.Dialect.UpsertConflict([]string{"user_id", "role_id", "tenant_id"})+`
			active = excluded.active, expires_at = excluded.expires_at`),
		ra.UserID, ra.RoleID, ra.TenantID, ra.Active, nullTimePtr(ra.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return nil
}

// UpsertGrant inserts or updates a menu permission grant. The (tenant, role,
// node) tuple is unique; a second write replaces the flags.
func (a *AuthStore) UpsertGrant(ctx context.Context, g *MenuPermissionGrant) error {
	f := g.Flags
	_, err := a.db.DB.ExecContext(ctx, a.query(`
		INSERT INTO menu_permission_grants
			(tenant_id, role_id, node_id, can_view, can_create, can_edit, can_delete, can_export, can_print, can_approve)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`+a.db.Dialect.UpsertConflict([]string{"tenant_id", "role_id", "node_id"})+`
			can_view = excluded.can_view, can_create = excluded.can_create,
			can_edit = excluded.can_edit, can_delete = excluded.can_delete,
			can_export = excluded.can_export, can_print = excluded.can_print,
			can_approve = excluded.can_approve`),
		g.TenantID, g.RoleID, g.NodeID,
		f.View, f.Create, f.Edit, f.Delete, f.Export, f.Print, f.Approve)
	if err != nil {
		return fmt.Errorf("failed to upsert grant: %w", err)
	}
	return nil
}

// ProvisionRoles creates a tenant's starter roles from vendor role templates.
// This is the only consumer of RoleTemplate; the menu aggregator never reads
// templates.
func (a *AuthStore) ProvisionRoles(ctx context.Context, tenantID string, templates []*RoleTemplate) ([]*Role, error) {
	roles := make([]*Role, 0, len(templates))
	for _, t := range templates {
		r := &Role{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			Name:        t.Name,
			AccessLevel: t.AccessLevel,
		}
		if err := a.UpsertRole(ctx, r); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// EnsureSchema creates the authorization tables if they do not exist. Used
// when bootstrapping a dedicated tenant store; the central store creates the
// same tables through its own schema init.
func (a *AuthStore) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.DB.ExecContext(ctx, authSchema(a.db.Dialect)); err != nil {
		return fmt.Errorf("failed to ensure auth schema: %w", err)
	}
	return nil
}

// authSchema renders the authorization tables for the given dialect.
func authSchema(d Dialect) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		name TEXT NOT NULL,
		access_level INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_roles_tenant ON roles(tenant_id);

	CREATE TABLE IF NOT EXISTS user_role_assignments (
		user_id TEXT NOT NULL,
		role_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		active %[2]s NOT NULL DEFAULT %[3]s,
		expires_at %[1]s,
		PRIMARY KEY (user_id, role_id, tenant_id)
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_user ON user_role_assignments(tenant_id, user_id);

	CREATE TABLE IF NOT EXISTS menu_permission_grants (
		tenant_id TEXT NOT NULL,
		role_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		can_view %[2]s NOT NULL DEFAULT %[4]s,
		can_create %[2]s NOT NULL DEFAULT %[4]s,
		can_edit %[2]s NOT NULL DEFAULT %[4]s,
		can_delete %[2]s NOT NULL DEFAULT %[4]s,
		can_export %[2]s NOT NULL DEFAULT %[4]s,
		can_print %[2]s NOT NULL DEFAULT %[4]s,
		can_approve %[2]s NOT NULL DEFAULT %[4]s,
		PRIMARY KEY (tenant_id, role_id, node_id)
	);
	CREATE INDEX IF NOT EXISTS idx_grants_role ON menu_permission_grants(tenant_id, role_id);
	`, d.TimestampType(), d.BoolType(), boolLiteral(d, true), boolLiteral(d, false))
}

func boolLiteral(d Dialect, v bool) string {
	if d.Name() == "postgres" {
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	if v {
		return "1"
	}
	return "0"
}
