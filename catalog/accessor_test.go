package catalog

import (
	"context"
	"testing"

	"erpgate/server/storage"
)

func newSeededAccessor(t *testing.T) *Accessor {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	modules := []*storage.Module{
		{ID: "m-pur", Code: "PUR", Label: "Purchasing", Rank: 2},
		{ID: "m-inv", Code: "INV", Label: "Inventory", Rank: 1},
	}
	for _, m := range modules {
		if err := store.UpsertModule(ctx, m); err != nil {
			t.Fatalf("UpsertModule failed: %v", err)
		}
	}
	if err := store.UpsertSection(ctx, &storage.ModuleSection{ID: "s-inv", ModuleID: "m-inv", Code: "INV_CATALOG", Label: "Catalog", Rank: 1}); err != nil {
		t.Fatalf("UpsertSection failed: %v", err)
	}
	nodes := []*storage.MenuNode{
		{ID: "n-global", ModuleID: "m-inv", SectionID: "s-inv", Code: "INV_LIST", Label: "List", Rank: 1},
		{ID: "n-acme", ModuleID: "m-inv", SectionID: "s-inv", OwnerTenantID: "t-acme", Code: "INV_ACME", Label: "Acme only", Rank: 2},
		{ID: "n-beta", ModuleID: "m-inv", SectionID: "s-inv", OwnerTenantID: "t-beta", Code: "INV_BETA", Label: "Beta only", Rank: 2},
	}
	for _, n := range nodes {
		if err := store.UpsertMenuNode(ctx, n); err != nil {
			t.Fatalf("UpsertMenuNode failed: %v", err)
		}
	}
	if err := store.UpsertRoleTemplate(ctx, &storage.RoleTemplate{ID: "rt-1", ModuleID: "m-inv", Name: "Inventory Manager", AccessLevel: 50}); err != nil {
		t.Fatalf("UpsertRoleTemplate failed: %v", err)
	}
	return NewAccessor(store, 0, nil)
}

func TestSliceRestrictsToModuleSet(t *testing.T) {
	t.Parallel()

	a := newSeededAccessor(t)
	slice, err := a.Slice(context.Background(), "t-acme", []string{"m-inv"})
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	if len(slice.Modules) != 1 || slice.Modules[0].Code != "INV" {
		t.Fatalf("module restriction wrong: %+v", slice.Modules)
	}
	if len(slice.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(slice.Sections))
	}
}

func TestSliceTenantSeesOnlyOwnOverrides(t *testing.T) {
	t.Parallel()

	a := newSeededAccessor(t)
	slice, err := a.Slice(context.Background(), "t-acme", []string{"m-inv"})
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	for _, n := range slice.Nodes {
		if n.OwnerTenantID != "" && n.OwnerTenantID != "t-acme" {
			t.Fatalf("node %s leaked from tenant %s", n.Code, n.OwnerTenantID)
		}
	}
	if len(slice.Nodes) != 2 {
		t.Fatalf("expected global + own override, got %d nodes", len(slice.Nodes))
	}
}

func TestSliceEmptyModuleSet(t *testing.T) {
	t.Parallel()

	a := newSeededAccessor(t)
	slice, err := a.Slice(context.Background(), "t-acme", nil)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	if len(slice.Modules) != 0 || len(slice.Nodes) != 0 {
		t.Fatalf("empty module set must yield an empty slice: %+v", slice)
	}
}

func TestRoleTemplates(t *testing.T) {
	t.Parallel()

	a := newSeededAccessor(t)
	templates, err := a.RoleTemplates(context.Background(), "m-inv")
	if err != nil {
		t.Fatalf("RoleTemplates failed: %v", err)
	}
	if len(templates) != 1 || templates[0].Name != "Inventory Manager" {
		t.Fatalf("unexpected templates: %+v", templates)
	}
}
