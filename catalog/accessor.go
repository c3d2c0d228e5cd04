// Package catalog provides read-only, ordered access to the vendor menu
// catalog: modules, sections, menu nodes (global plus one tenant's
// overrides) and role templates. The catalog always lives in the central
// store.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"erpgate/server/storage"
)

// DefaultMaxDepth bounds menu tree traversal. Real menus are a handful of
// levels deep; anything beyond this is malformed data.
const DefaultMaxDepth = 12

// Slice is one tenant's view of the catalog restricted to a module set,
// with every listing ordered rank ascending, code ascending.
type Slice struct {
	Modules  []*storage.Module
	Sections []*storage.ModuleSection
	Nodes    []*storage.MenuNode
}

// Accessor reads the catalog from the central store.
type Accessor struct {
	store    storage.Store
	maxDepth int
	log      *zap.Logger
}

// NewAccessor creates a catalog accessor. maxDepth <= 0 selects
// DefaultMaxDepth.
func NewAccessor(store storage.Store, maxDepth int, log *zap.Logger) *Accessor {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Accessor{store: store, maxDepth: maxDepth, log: log}
}

// MaxDepth returns the configured traversal bound.
func (a *Accessor) MaxDepth() int { return a.maxDepth }

// Slice fetches the modules, sections and menu nodes visible to a tenant,
// restricted to the given module ids. An empty module set yields an empty
// slice.
func (a *Accessor) Slice(ctx context.Context, tenantID string, moduleIDs []string) (*Slice, error) {
	if len(moduleIDs) == 0 {
		return &Slice{}, nil
	}

	modules, err := a.store.ListModules(ctx, moduleIDs)
	if err != nil {
		return nil, fmt.Errorf("catalog modules: %w", err)
	}
	sections, err := a.store.ListSections(ctx, moduleIDs)
	if err != nil {
		return nil, fmt.Errorf("catalog sections: %w", err)
	}
	nodes, err := a.store.ListMenuNodes(ctx, tenantID, moduleIDs)
	if err != nil {
		return nil, fmt.Errorf("catalog nodes: %w", err)
	}

	return &Slice{Modules: modules, Sections: sections, Nodes: nodes}, nil
}

// RoleTemplates returns the vendor role templates for one module. Used by
// tenant provisioning only.
func (a *Accessor) RoleTemplates(ctx context.Context, moduleID string) ([]*storage.RoleTemplate, error) {
	templates, err := a.store.ListRoleTemplates(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("role templates: %w", err)
	}
	return templates, nil
}
