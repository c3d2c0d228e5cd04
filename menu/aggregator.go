// Package menu builds the permission-filtered navigation tree for one user
// of one tenant: entitled modules only, tenant overrides applied over the
// global catalog, permission flags OR-merged across the user's roles, and
// every invisible node pruned.
package menu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"erpgate/server/catalog"
	"erpgate/server/storage"
	"erpgate/server/tenancy"
)

// DefaultPrivilegedLevel is the access level at which a role bypasses grant
// lookup and receives every permission on every entitled node.
const DefaultPrivilegedLevel = 90

// Aggregator joins catalog, entitlement and authorization data into a
// MenuDocument.
type Aggregator struct {
	catalog         CatalogPort
	authz           AuthorizationPort
	entitlements    EntitlementPort
	privilegedLevel int
	log             *zap.Logger
	nowFunc         func() time.Time
}

// NewAggregator creates a menu aggregator. privilegedLevel <= 0 selects
// DefaultPrivilegedLevel.
func NewAggregator(cat CatalogPort, auth AuthorizationPort, ent EntitlementPort, privilegedLevel int, log *zap.Logger) *Aggregator {
	if privilegedLevel <= 0 {
		privilegedLevel = DefaultPrivilegedLevel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		catalog:         cat,
		authz:           auth,
		entitlements:    ent,
		privilegedLevel: privilegedLevel,
		log:             log,
		nowFunc:         time.Now,
	}
}

// BuildMenu produces the user's menu. Authorization and catalog data are
// fetched in parallel; a failure on either side cancels the other and fails
// the whole build. The result is deterministic for a fixed data snapshot and
// never a partial tree.
func (a *Aggregator) BuildMenu(ctx context.Context, tc tenancy.TenantContext, userID string) (*MenuDocument, error) {
	var (
		privileged bool
		grants     map[string]storage.PermissionFlags
		slice      *catalog.Slice
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		roles, err := a.authz.EffectiveRoles(gctx, tc, userID)
		if err != nil {
			return err
		}
		if storage.MaxAccessLevel(roles) >= a.privilegedLevel {
			// Privileged callers never consult the grant table.
			privileged = true
			return nil
		}
		roleIDs := make([]string, len(roles))
		for i, r := range roles {
			roleIDs[i] = r.ID
		}
		grants, err = a.authz.Grants(gctx, tc, roleIDs)
		return err
	})

	g.Go(func() error {
		moduleIDs, err := a.entitlements.ActiveModules(gctx, tc.TenantID)
		if err != nil {
			return fmt.Errorf("entitled modules: %w", err)
		}
		slice, err = a.catalog.Slice(gctx, tc.TenantID, moduleIDs)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	doc := &MenuDocument{
		TenantID:    tc.TenantID,
		UserID:      userID,
		GeneratedAt: a.nowFunc().UTC(),
		Privileged:  privileged,
	}
	doc.Modules = a.assemble(tc, slice, privileged, grants)
	return doc, nil
}

// assemble merges overrides, builds per-section trees and prunes everything
// the caller cannot see.
func (a *Aggregator) assemble(tc tenancy.TenantContext, slice *catalog.Slice, privileged bool, grants map[string]storage.PermissionFlags) []*MenuModule {
	nodes := mergeOverrides(slice.Nodes)

	bySection := make(map[string][]*storage.MenuNode)
	for _, n := range nodes {
		bySection[n.SectionID] = append(bySection[n.SectionID], n)
	}

	sectionsByModule := make(map[string][]*storage.ModuleSection)
	for _, s := range slice.Sections {
		sectionsByModule[s.ModuleID] = append(sectionsByModule[s.ModuleID], s)
	}

	modules := make([]*MenuModule, 0, len(slice.Modules))
	for _, m := range slice.Modules {
		mm := &MenuModule{ID: m.ID, Code: m.Code, Label: m.Label, Icon: m.Icon, Color: m.Color, Rank: m.Rank}
		for _, s := range sectionsByModule[m.ID] {
			forest, err := catalog.BuildForest(bySection[s.ID], a.catalog.MaxDepth())
			if errors.Is(err, catalog.ErrTraversalLimit) {
				// Data-integrity warning; the truncated forest is still valid.
				a.log.Warn("menu graph truncated",
					zap.String("tenant_id", tc.TenantID),
					zap.String("module", m.Code),
					zap.String("section", s.Code))
			}
			items := a.renderForest(forest, privileged, grants)
			if len(items) == 0 {
				continue
			}
			mm.Sections = append(mm.Sections, &MenuSection{
				ID: s.ID, Code: s.Code, Label: s.Label, Rank: s.Rank, Items: items,
			})
		}
		if len(mm.Sections) > 0 {
			modules = append(modules, mm)
		}
	}
	return modules
}

// renderForest converts catalog trees into menu items, attaching flags and
// dropping any subtree whose root the caller cannot view.
func (a *Aggregator) renderForest(forest []*catalog.TreeNode, privileged bool, grants map[string]storage.PermissionFlags) []*MenuItem {
	items := make([]*MenuItem, 0, len(forest))
	for _, tn := range forest {
		if item := a.renderNode(tn, privileged, grants); item != nil {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

func (a *Aggregator) renderNode(tn *catalog.TreeNode, privileged bool, grants map[string]storage.PermissionFlags) *MenuItem {
	var flags storage.PermissionFlags
	if privileged {
		flags = storage.AllPermissions()
	} else {
		flags = grants[tn.Node.ID]
		if !flags.View {
			return nil
		}
	}
	item := &MenuItem{
		ID:    tn.Node.ID,
		Code:  tn.Node.Code,
		Label: tn.Node.Label,
		Icon:  tn.Node.Icon,
		Route: tn.Node.Route,
		Rank:  tn.Node.Rank,
		Flags: flags,
	}
	for _, c := range tn.Children {
		if child := a.renderNode(c, privileged, grants); child != nil {
			item.Submenus = append(item.Submenus, child)
		}
	}
	return item
}

// mergeOverrides applies augmentation with precedence: a tenant-owned node
// sharing a global node's position (module, section, parent) and code
// replaces it; global nodes without an override remain. Children of a
// replaced global node are re-parented onto the override.
func mergeOverrides(nodes []*storage.MenuNode) []*storage.MenuNode {
	type key struct{ moduleID, sectionID, parentID, code string }
	nodeKey := func(n *storage.MenuNode) key {
		return key{n.ModuleID, n.SectionID, n.ParentID, n.Code}
	}

	overrides := make(map[key]*storage.MenuNode)
	for _, n := range nodes {
		if !n.Global() {
			overrides[nodeKey(n)] = n
		}
	}
	if len(overrides) == 0 {
		return nodes
	}

	reparent := make(map[string]string)
	merged := make([]*storage.MenuNode, 0, len(nodes))
	for _, n := range nodes {
		if o, ok := overrides[nodeKey(n)]; ok {
			if n.Global() {
				// Shadowed by the tenant override.
				reparent[n.ID] = o.ID
				continue
			}
		}
		merged = append(merged, n)
	}

	if len(reparent) == 0 {
		return merged
	}
	out := make([]*storage.MenuNode, len(merged))
	for i, n := range merged {
		if newParent, ok := reparent[n.ParentID]; ok && newParent != n.ID {
			clone := *n
			clone.ParentID = newParent
			out[i] = &clone
			continue
		}
		out[i] = n
	}
	return out
}
