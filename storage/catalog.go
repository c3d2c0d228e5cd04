package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Catalog reads. All listings are ordered rank ascending with ties broken by
// code ascending, so a fixed snapshot always yields the same sequence.

// ListModules returns catalog modules. With no ids the full catalog is
// returned; otherwise only the requested modules.
func (s *BaseStore) ListModules(ctx context.Context, ids []string) ([]*Module, error) {
	q := `SELECT id, code, label, icon, color, rank FROM modules`
	args := []interface{}{}
	if len(ids) > 0 {
		q += ` WHERE id IN (` + inPlaceholders(len(ids)) + `)`
		args = stringsToAny(ids)
	}
	q += ` ORDER BY rank, code`

	rows, err := s.queryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var modules []*Module
	for rows.Next() {
		m := &Module{}
		if err := rows.Scan(&m.ID, &m.Code, &m.Label, &m.Icon, &m.Color, &m.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// ListSections returns the sections of the given modules, ordered.
func (s *BaseStore) ListSections(ctx context.Context, moduleIDs []string) ([]*ModuleSection, error) {
	if len(moduleIDs) == 0 {
		return nil, nil
	}
	q := `SELECT id, module_id, code, label, rank FROM module_sections
		WHERE module_id IN (` + inPlaceholders(len(moduleIDs)) + `)
		ORDER BY rank, code`

	rows, err := s.queryContext(ctx, q, stringsToAny(moduleIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	var sections []*ModuleSection
	for rows.Next() {
		sec := &ModuleSection{}
		if err := rows.Scan(&sec.ID, &sec.ModuleID, &sec.Code, &sec.Label, &sec.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// ListMenuNodes returns the menu nodes of the given modules visible to one
// tenant: every global node plus that tenant's override nodes. Other tenants'
// overrides are never returned.
func (s *BaseStore) ListMenuNodes(ctx context.Context, tenantID string, moduleIDs []string) ([]*MenuNode, error) {
	if len(moduleIDs) == 0 {
		return nil, nil
	}
	q := `SELECT id, module_id, section_id, parent_id, owner_tenant_id, code, label, icon, route, rank
		FROM menu_nodes
		WHERE module_id IN (` + inPlaceholders(len(moduleIDs)) + `)
		AND (owner_tenant_id IS NULL OR owner_tenant_id = ?)
		ORDER BY rank, code`
	args := append(stringsToAny(moduleIDs), tenantID)

	rows, err := s.queryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list menu nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*MenuNode
	for rows.Next() {
		n, err := scanMenuNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ListRoleTemplates returns the vendor role templates for a module.
func (s *BaseStore) ListRoleTemplates(ctx context.Context, moduleID string) ([]*RoleTemplate, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, module_id, name, access_level,
			def_view, def_create, def_edit, def_delete, def_export, def_print, def_approve
		FROM role_templates WHERE module_id = ? ORDER BY name`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role templates: %w", err)
	}
	defer rows.Close()

	var templates []*RoleTemplate
	for rows.Next() {
		t := &RoleTemplate{}
		d := &t.Defaults
		if err := rows.Scan(&t.ID, &t.ModuleID, &t.Name, &t.AccessLevel,
			&d.View, &d.Create, &d.Edit, &d.Delete, &d.Export, &d.Print, &d.Approve); err != nil {
			return nil, fmt.Errorf("failed to scan role template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// UpsertModule inserts or updates a catalog module.
func (s *BaseStore) UpsertModule(ctx context.Context, m *Module) error {
	_, err := s.execContext(ctx, `
		INSERT INTO modules (id, code, label, icon, color, rank)
		VALUES (?, ?, ?, ?, ?, ?)
		`+s.dialect.UpsertConflict([]string{"id"})+`
			code = excluded.code, label = excluded.label, icon = excluded.icon,
			color = excluded.color, rank = excluded.rank`,
		m.ID, m.Code, m.Label, m.Icon, m.Color, m.Rank)
	if err != nil {
		return fmt.Errorf("failed to upsert module %s: %w", m.Code, err)
	}
	return nil
}

// UpsertSection inserts or updates a module section.
func (s *BaseStore) UpsertSection(ctx context.Context, sec *ModuleSection) error {
	_, err := s.execContext(ctx, `
		INSERT INTO module_sections (id, module_id, code, label, rank)
		VALUES (?, ?, ?, ?, ?)
		`+s.dialect.UpsertConflict([]string{"id"})+`
			module_id = excluded.module_id, code = excluded.code,
			label = excluded.label, rank = excluded.rank`,
		sec.ID, sec.ModuleID, sec.Code, sec.Label, sec.Rank)
	if err != nil {
		return fmt.Errorf("failed to upsert section %s: %w", sec.Code, err)
	}
	return nil
}

// UpsertMenuNode inserts or updates a menu node (global or tenant override).
func (s *BaseStore) UpsertMenuNode(ctx context.Context, n *MenuNode) error {
	_, err := s.execContext(ctx, `
		INSERT INTO menu_nodes (id, module_id, section_id, parent_id, owner_tenant_id, code, label, icon, route, rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`+s.dialect.UpsertConflict([]string{"id"})+`
			module_id = excluded.module_id, section_id = excluded.section_id,
			parent_id = excluded.parent_id, owner_tenant_id = excluded.owner_tenant_id,
			code = excluded.code, label = excluded.label, icon = excluded.icon,
			route = excluded.route, rank = excluded.rank`,
		n.ID, n.ModuleID, n.SectionID, nullString(n.ParentID), nullString(n.OwnerTenantID),
		n.Code, n.Label, n.Icon, n.Route, n.Rank)
	if err != nil {
		return fmt.Errorf("failed to upsert menu node %s: %w", n.Code, err)
	}
	return nil
}

// UpsertRoleTemplate inserts or updates a vendor role template.
func (s *BaseStore) UpsertRoleTemplate(ctx context.Context, t *RoleTemplate) error {
	d := t.Defaults
	_, err := s.execContext(ctx, `
		INSERT INTO role_templates (id, module_id, name, access_level,
			def_view, def_create, def_edit, def_delete, def_export, def_print, def_approve)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`+s.dialect.UpsertConflict([]string{"id"})+`
			module_id = excluded.module_id, name = excluded.name,
			access_level = excluded.access_level,
			def_view = excluded.def_view, def_create = excluded.def_create,
			def_edit = excluded.def_edit, def_delete = excluded.def_delete,
			def_export = excluded.def_export, def_print = excluded.def_print,
			def_approve = excluded.def_approve`,
		t.ID, t.ModuleID, t.Name, t.AccessLevel,
		d.View, d.Create, d.Edit, d.Delete, d.Export, d.Print, d.Approve)
	if err != nil {
		return fmt.Errorf("failed to upsert role template %s: %w", t.Name, err)
	}
	return nil
}

func scanMenuNode(r rowScanner) (*MenuNode, error) {
	n := &MenuNode{}
	var parentID, ownerID, icon, route sql.NullString
	if err := r.Scan(&n.ID, &n.ModuleID, &n.SectionID, &parentID, &ownerID,
		&n.Code, &n.Label, &icon, &route, &n.Rank); err != nil {
		return nil, fmt.Errorf("failed to scan menu node: %w", err)
	}
	n.ParentID = parentID.String
	n.OwnerTenantID = ownerID.String
	n.Icon = icon.String
	n.Route = route.String
	return n, nil
}
