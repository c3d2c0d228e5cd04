package authz

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"erpgate/server/router"
	"erpgate/server/storage"
	"erpgate/server/tenancy"
)

func newTestAccessor(t *testing.T, cfg router.Config) (*Accessor, *router.Router, *storage.SQLiteStore, storage.Cipher) {
	t.Helper()
	central, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("central store: %v", err)
	}
	t.Cleanup(func() { central.Close() })

	key, err := storage.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	cipher, err := storage.NewAEADCipher(key)
	if err != nil {
		t.Fatalf("NewAEADCipher failed: %v", err)
	}

	r := router.New(central.DB(), central, cipher, cfg, nil)
	t.Cleanup(func() { r.Close() })
	return NewAccessor(r, nil), r, central, cipher
}

func seedConnectionMetadata(t *testing.T, central *storage.SQLiteStore, cipher storage.Cipher, tenantID string) {
	t.Helper()
	blob, err := storage.EncryptCredentials(cipher, &storage.Credentials{User: "erp", Password: "pw"})
	if err != nil {
		t.Fatalf("EncryptCredentials failed: %v", err)
	}
	meta := &storage.ConnectionMetadata{TenantID: tenantID, Host: "db", Port: 5432, DBName: "erp", EncryptedCredentials: blob}
	if err := central.UpsertConnectionMetadata(context.Background(), meta); err != nil {
		t.Fatalf("UpsertConnectionMetadata failed: %v", err)
	}
}

func seedAuthData(t *testing.T, central *storage.SQLiteStore, tenantID string) {
	t.Helper()
	ctx := context.Background()
	auth := storage.NewAuthStore(central.DB())

	roles := []*storage.Role{
		{ID: "role-admin", TenantID: tenantID, Name: "Administrator", AccessLevel: 90},
		{ID: "role-clerk", TenantID: tenantID, Name: "Clerk", AccessLevel: 10},
	}
	for _, r := range roles {
		if err := auth.UpsertRole(ctx, r); err != nil {
			t.Fatalf("UpsertRole failed: %v", err)
		}
	}
	assignments := []*storage.UserRoleAssignment{
		{UserID: "u1", RoleID: "role-admin", TenantID: tenantID, Active: true},
		{UserID: "u1", RoleID: "role-clerk", TenantID: tenantID, Active: true},
		{UserID: "u2", RoleID: "role-clerk", TenantID: tenantID, Active: true},
	}
	for _, ra := range assignments {
		if err := auth.UpsertAssignment(ctx, ra); err != nil {
			t.Fatalf("UpsertAssignment failed: %v", err)
		}
	}
	grants := []*storage.MenuPermissionGrant{
		{TenantID: tenantID, RoleID: "role-admin", NodeID: "n-orders", Flags: storage.PermissionFlags{View: true, Edit: true}},
		{TenantID: tenantID, RoleID: "role-clerk", NodeID: "n-orders", Flags: storage.PermissionFlags{View: true, Export: true}},
	}
	for _, g := range grants {
		if err := auth.UpsertGrant(ctx, g); err != nil {
			t.Fatalf("UpsertGrant failed: %v", err)
		}
	}
}

var sharedTC = tenancy.TenantContext{
	TenantID:    "t-shared",
	Subdomain:   "shared",
	StorageMode: storage.StorageModeShared,
}

func TestEffectiveRolesSharedTenant(t *testing.T) {
	t.Parallel()

	a, _, central, _ := newTestAccessor(t, router.Config{})
	seedAuthData(t, central, sharedTC.TenantID)

	roles, err := a.EffectiveRoles(context.Background(), sharedTC, "u1")
	if err != nil {
		t.Fatalf("EffectiveRoles failed: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(roles))
	}
	if roles[0].Name != "Administrator" {
		t.Fatalf("strongest role must come first, got %s", roles[0].Name)
	}
}

func TestGrantsMergeAcrossRoles(t *testing.T) {
	t.Parallel()

	a, _, central, _ := newTestAccessor(t, router.Config{})
	seedAuthData(t, central, sharedTC.TenantID)

	grants, err := a.Grants(context.Background(), sharedTC, []string{"role-admin", "role-clerk"})
	if err != nil {
		t.Fatalf("Grants failed: %v", err)
	}
	f, ok := grants["n-orders"]
	if !ok {
		t.Fatalf("missing grant for n-orders: %+v", grants)
	}
	want := storage.PermissionFlags{View: true, Edit: true, Export: true}
	if f != want {
		t.Fatalf("OR-merge wrong: got %+v want %+v", f, want)
	}
}

func TestGrantsEmptyRoleSet(t *testing.T) {
	t.Parallel()

	a, _, _, _ := newTestAccessor(t, router.Config{})
	grants, err := a.Grants(context.Background(), sharedTC, nil)
	if err != nil {
		t.Fatalf("Grants failed: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected empty map, got %+v", grants)
	}
}

func TestStoreFailureFailsClosed(t *testing.T) {
	t.Parallel()

	a, r, _, _ := newTestAccessor(t, router.Config{ConnectAttempts: 1, ConnectBackoff: time.Millisecond})
	r.SetDialFunc(func(ctx context.Context, dsn string) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	})

	dedicated := tenancy.TenantContext{TenantID: "t-ded", StorageMode: storage.StorageModeDedicated}
	_, err := a.EffectiveRoles(context.Background(), dedicated, "u1")
	if !errors.Is(err, ErrAuthorizationUnavailable) {
		t.Fatalf("expected ErrAuthorizationUnavailable, got %v", err)
	}
	_, err = a.Grants(context.Background(), dedicated, []string{"role-admin"})
	if !errors.Is(err, ErrAuthorizationUnavailable) {
		t.Fatalf("expected ErrAuthorizationUnavailable, got %v", err)
	}
}

func TestBackpressureKeepsIdentity(t *testing.T) {
	t.Parallel()

	a, r, central, cipher := newTestAccessor(t, router.Config{MaxLeasesPerTenant: 1, AcquireTimeout: 20 * time.Millisecond})
	seedConnectionMetadata(t, central, cipher, "t-ded")
	r.SetDialFunc(func(ctx context.Context, dsn string) (*sql.DB, error) {
		return sql.Open("sqlite", ":memory:")
	})

	dedicated := tenancy.TenantContext{TenantID: "t-ded", StorageMode: storage.StorageModeDedicated}
	h, err := r.Acquire(context.Background(), dedicated, router.ScopeTenantData)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer h.Release()

	_, err = a.EffectiveRoles(context.Background(), dedicated, "u1")
	if !errors.Is(err, router.ErrBackpressure) {
		t.Fatalf("expected ErrBackpressure to pass through, got %v", err)
	}
	if errors.Is(err, ErrAuthorizationUnavailable) {
		t.Fatalf("backpressure must not be relabelled as unavailable")
	}
}
