package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"erpgate/server/menu"
	"erpgate/server/storage"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*server, storage.Store) {
	t.Helper()

	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := DefaultConfig()
	cfg.Auth.JWTSecret = testSecret

	srv, err := newServer(cfg, store, zap.NewNop())
	if err != nil {
		t.Fatalf("newServer failed: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, store
}

// seedTenant installs a shared-mode tenant with one entitled module, a
// section, a node, a clerk role for u1 with a view grant, and an admin role
// for u2.
func seedTenant(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.UpsertTenant(ctx, &storage.Tenant{
		ID: "t-acme", Subdomain: "acme", Name: "Acme Corp",
		StorageMode: storage.StorageModeShared, Active: true, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("UpsertTenant failed: %v", err)
	}

	if err := store.UpsertModule(ctx, &storage.Module{ID: "m-inv", Code: "INV", Label: "Inventory", Rank: 1}); err != nil {
		t.Fatalf("UpsertModule failed: %v", err)
	}
	if err := store.UpsertSection(ctx, &storage.ModuleSection{ID: "s-inv", ModuleID: "m-inv", Code: "INV_CATALOG", Label: "Catalog", Rank: 1}); err != nil {
		t.Fatalf("UpsertSection failed: %v", err)
	}
	if err := store.UpsertMenuNode(ctx, &storage.MenuNode{ID: "n-list", ModuleID: "m-inv", SectionID: "s-inv", Code: "INV_LIST", Label: "List", Rank: 1}); err != nil {
		t.Fatalf("UpsertMenuNode failed: %v", err)
	}
	if err := store.UpsertEntitlement(ctx, &storage.ModuleEntitlement{TenantID: "t-acme", ModuleID: "m-inv", Active: true}); err != nil {
		t.Fatalf("UpsertEntitlement failed: %v", err)
	}

	auth := storage.NewAuthStore(store.DB())
	if err := auth.UpsertRole(ctx, &storage.Role{ID: "r-clerk", TenantID: "t-acme", Name: "Clerk", AccessLevel: 10}); err != nil {
		t.Fatalf("UpsertRole failed: %v", err)
	}
	if err := auth.UpsertRole(ctx, &storage.Role{ID: "r-admin", TenantID: "t-acme", Name: "Administrator", AccessLevel: 95}); err != nil {
		t.Fatalf("UpsertRole failed: %v", err)
	}
	if err := auth.UpsertAssignment(ctx, &storage.UserRoleAssignment{UserID: "u1", RoleID: "r-clerk", TenantID: "t-acme", Active: true}); err != nil {
		t.Fatalf("UpsertAssignment failed: %v", err)
	}
	if err := auth.UpsertAssignment(ctx, &storage.UserRoleAssignment{UserID: "u2", RoleID: "r-admin", TenantID: "t-acme", Active: true}); err != nil {
		t.Fatalf("UpsertAssignment failed: %v", err)
	}
	if err := auth.UpsertGrant(ctx, &storage.MenuPermissionGrant{
		TenantID: "t-acme", RoleID: "r-clerk", NodeID: "n-list",
		Flags: storage.PermissionFlags{View: true},
	}); err != nil {
		t.Fatalf("UpsertGrant failed: %v", err)
	}
}

func menuRequest(t *testing.T, host, userID, tenantClaim string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/menu", nil)
	req.Host = host
	if userID != "" {
		token, err := issueToken(testSecret, userID, tenantClaim, time.Minute)
		if err != nil {
			t.Fatalf("issueToken failed: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestMenuEndpointServesDocument(t *testing.T) {
	srv, store := newTestServer(t)
	seedTenant(t, store)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, menuRequest(t, "acme.erpgate.example:443", "u1", "t-acme"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc menu.MenuDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid document JSON: %v", err)
	}
	if doc.TenantID != "t-acme" || doc.UserID != "u1" {
		t.Fatalf("document identity wrong: %+v", doc)
	}
	if len(doc.Modules) != 1 || doc.Modules[0].Code != "INV" {
		t.Fatalf("unexpected modules: %+v", doc.Modules)
	}
	item := doc.Modules[0].Sections[0].Items[0]
	if item.Code != "INV_LIST" || !item.Flags.View || item.Flags.Edit {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestMenuEndpointPrivilegedUser(t *testing.T) {
	srv, store := newTestServer(t)
	seedTenant(t, store)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, menuRequest(t, "acme.erpgate.example", "u2", "t-acme"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc menu.MenuDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid document JSON: %v", err)
	}
	if !doc.Privileged {
		t.Fatal("admin user must be privileged")
	}
	item := doc.Modules[0].Sections[0].Items[0]
	if item.Flags != storage.AllPermissions() {
		t.Fatalf("privileged item flags wrong: %+v", item.Flags)
	}
}

func TestMenuEndpointUnknownTenant(t *testing.T) {
	srv, store := newTestServer(t)
	seedTenant(t, store)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, menuRequest(t, "nobody.erpgate.example", "u1", "t-acme"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown tenant, got %d", rec.Code)
	}
}

func TestMenuEndpointMissingToken(t *testing.T) {
	srv, store := newTestServer(t)
	seedTenant(t, store)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, menuRequest(t, "acme.erpgate.example", "", ""))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", rec.Code)
	}
}

func TestMenuEndpointTenantMismatch(t *testing.T) {
	srv, store := newTestServer(t)
	seedTenant(t, store)

	// Token claims another tenant; the host-resolved tenant wins and the
	// request is rejected.
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, menuRequest(t, "acme.erpgate.example", "u1", "t-other"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tenant mismatch, got %d", rec.Code)
	}
}

func TestMenuEndpointDedicatedStoreDown(t *testing.T) {
	srv, store := newTestServer(t)
	seedTenant(t, store)

	// A dedicated tenant without reachable connection metadata cannot have
	// its authorization data read; the endpoint fails closed with a 503.
	if err := store.UpsertTenant(context.Background(), &storage.Tenant{
		ID: "t-iso", Subdomain: "iso", Name: "Isolated Inc",
		StorageMode: storage.StorageModeDedicated, Active: true, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("UpsertTenant failed: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, menuRequest(t, "iso.erpgate.example", "u1", "t-iso"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for unreachable dedicated store, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndVersionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.routes()

	for _, path := range []string{"/health", "/api/version"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, rec.Code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s missing request id header", path)
		}
	}
}

func TestMenuEndpointRejectsPost(t *testing.T) {
	srv, store := newTestServer(t)
	seedTenant(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/menu", nil)
	req.Host = "acme.erpgate.example"
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
