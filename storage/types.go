package storage

import (
	"context"
	"time"
)

// StorageMode describes where a tenant's authorization and operational data
// lives. The mode is fixed at onboarding; migrating a tenant between modes is
// an external operation and never happens through this server.
type StorageMode string

const (
	// StorageModeShared keeps the tenant's data in the central store,
	// partitioned by tenant id on every query.
	StorageModeShared StorageMode = "shared"
	// StorageModeDedicated gives the tenant its own database, reachable with
	// connection metadata held centrally.
	StorageModeDedicated StorageMode = "dedicated"
	// StorageModeOnPremise is a dedicated database hosted on customer
	// infrastructure. Routing-wise it behaves like dedicated.
	StorageModeOnPremise StorageMode = "onpremise"
)

// Valid reports whether the mode is one of the known storage modes.
func (m StorageMode) Valid() bool {
	switch m {
	case StorageModeShared, StorageModeDedicated, StorageModeOnPremise:
		return true
	}
	return false
}

// Tenant represents a customer account, discovered at request time by its
// subdomain. StorageMode is immutable after creation.
type Tenant struct {
	ID          string      `json:"id"`
	Subdomain   string      `json:"subdomain"`
	Name        string      `json:"name"`
	StorageMode StorageMode `json:"storage_mode"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ConnectionMetadata holds the coordinates of a tenant's dedicated database.
// Only present for tenants with mode != shared, and always stored centrally.
// Credentials are an encrypted blob; only the connection router ever decrypts
// them.
type ConnectionMetadata struct {
	TenantID             string    `json:"tenant_id"`
	Host                 string    `json:"host"`
	Port                 int       `json:"port"`
	DBName               string    `json:"db_name"`
	EncryptedCredentials []byte    `json:"-"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Module is a top-level ERP module in the vendor catalog (inventory,
// purchasing, sales, ...).
type Module struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
	Rank  int    `json:"rank"`
}

// ModuleSection groups menu nodes inside a module.
type ModuleSection struct {
	ID       string `json:"id"`
	ModuleID string `json:"module_id"`
	Code     string `json:"code"`
	Label    string `json:"label"`
	Rank     int    `json:"rank"`
}

// MenuNode is one entry of the navigation catalog. Nodes form a tree through
// ParentID. OwnerTenantID is empty for vendor (global) nodes and set for
// tenant-specific override nodes.
type MenuNode struct {
	ID            string `json:"id"`
	ModuleID      string `json:"module_id"`
	SectionID     string `json:"section_id"`
	ParentID      string `json:"parent_id,omitempty"`
	OwnerTenantID string `json:"owner_tenant_id,omitempty"`
	Code          string `json:"code"`
	Label         string `json:"label"`
	Icon          string `json:"icon,omitempty"`
	Route         string `json:"route,omitempty"`
	Rank          int    `json:"rank"`
}

// Global reports whether the node belongs to the vendor catalog rather than a
// single tenant.
func (n *MenuNode) Global() bool { return n.OwnerTenantID == "" }

// RoleTemplate is the vendor-defined default role shape for a module. It is
// consulted only when provisioning a tenant's roles, never at menu-build time.
type RoleTemplate struct {
	ID          string          `json:"id"`
	ModuleID    string          `json:"module_id"`
	Name        string          `json:"name"`
	AccessLevel int             `json:"access_level"`
	Defaults    PermissionFlags `json:"defaults"`
}

// ModuleEntitlement records whether a tenant currently has access to a module.
type ModuleEntitlement struct {
	TenantID   string     `json:"tenant_id"`
	ModuleID   string     `json:"module_id"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Trial      bool       `json:"trial"`
	UsageLimit int        `json:"usage_limit"`
	UsageCount int        `json:"usage_count"`
}

// Effective reports whether the entitlement grants access at the given
// instant: active, not expired, and within the usage limit when one is set.
func (e *ModuleEntitlement) Effective(now time.Time) bool {
	if !e.Active {
		return false
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
		return false
	}
	if e.UsageLimit > 0 && e.UsageCount >= e.UsageLimit {
		return false
	}
	return true
}

// Role carries an integer access level. A role whose level reaches the
// configured privileged threshold bypasses grant lookup entirely. TenantID is
// empty for vendor-global roles.
type Role struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id,omitempty"`
	Name        string `json:"name"`
	AccessLevel int    `json:"access_level"`
}

// UserRoleAssignment binds a user to a role within a tenant, optionally until
// an expiry instant.
type UserRoleAssignment struct {
	UserID    string     `json:"user_id"`
	RoleID    string     `json:"role_id"`
	TenantID  string     `json:"tenant_id"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Effective reports whether the assignment currently counts toward the user's
// roles.
func (a *UserRoleAssignment) Effective(now time.Time) bool {
	if !a.Active {
		return false
	}
	if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
		return false
	}
	return true
}

// PermissionFlags is the fixed set of per-node permissions. Keeping it a
// struct rather than a map makes the per-role OR-merge constant time and
// exhaustively testable.
type PermissionFlags struct {
	View    bool `json:"view"`
	Create  bool `json:"create"`
	Edit    bool `json:"edit"`
	Delete  bool `json:"delete"`
	Export  bool `json:"export"`
	Print   bool `json:"print"`
	Approve bool `json:"approve"`
}

// Or returns the most-permissive merge of two flag sets.
func (f PermissionFlags) Or(o PermissionFlags) PermissionFlags {
	return PermissionFlags{
		View:    f.View || o.View,
		Create:  f.Create || o.Create,
		Edit:    f.Edit || o.Edit,
		Delete:  f.Delete || o.Delete,
		Export:  f.Export || o.Export,
		Print:   f.Print || o.Print,
		Approve: f.Approve || o.Approve,
	}
}

// AllPermissions returns flags with every permission granted.
func AllPermissions() PermissionFlags {
	return PermissionFlags{View: true, Create: true, Edit: true, Delete: true, Export: true, Print: true, Approve: true}
}

// MenuPermissionGrant assigns explicit flags to one (tenant, role, node)
// tuple. The tuple is unique.
type MenuPermissionGrant struct {
	TenantID string          `json:"tenant_id"`
	RoleID   string          `json:"role_id"`
	NodeID   string          `json:"node_id"`
	Flags    PermissionFlags `json:"flags"`
}

// User is the identity attached to a bearer token.
type User struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Username string `json:"username"`
}

// Store is the central-store interface. The central store always holds the
// tenant directory, connection metadata, the vendor catalog, role templates
// and entitlements; for shared-mode tenants it additionally holds their
// authorization data, reached through AuthStore over the same handle.
type Store interface {
	// Tenant directory
	ListActiveTenants(ctx context.Context) ([]*Tenant, error)
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	UpsertTenant(ctx context.Context, t *Tenant) error

	// Dedicated-store coordinates
	GetConnectionMetadata(ctx context.Context, tenantID string) (*ConnectionMetadata, error)
	UpsertConnectionMetadata(ctx context.Context, m *ConnectionMetadata) error

	// Vendor catalog (global rows plus a tenant's override nodes)
	ListModules(ctx context.Context, ids []string) ([]*Module, error)
	ListSections(ctx context.Context, moduleIDs []string) ([]*ModuleSection, error)
	ListMenuNodes(ctx context.Context, tenantID string, moduleIDs []string) ([]*MenuNode, error)
	ListRoleTemplates(ctx context.Context, moduleID string) ([]*RoleTemplate, error)
	UpsertModule(ctx context.Context, m *Module) error
	UpsertSection(ctx context.Context, s *ModuleSection) error
	UpsertMenuNode(ctx context.Context, n *MenuNode) error
	UpsertRoleTemplate(ctx context.Context, t *RoleTemplate) error

	// Entitlements
	ListEntitlements(ctx context.Context, tenantID string) ([]*ModuleEntitlement, error)
	UpsertEntitlement(ctx context.Context, e *ModuleEntitlement) error

	// DB exposes the underlying handle so the connection router can hand it
	// to shared-mode authorization reads.
	DB() DBHandle

	Close() error
}
