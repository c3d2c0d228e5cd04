package menu

import (
	"time"

	"erpgate/server/storage"
)

// MenuDocument is the permission-filtered navigation tree served to one user
// of one tenant. It is complete or absent, never partial.
type MenuDocument struct {
	TenantID    string        `json:"tenant_id"`
	UserID      string        `json:"user_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Privileged  bool          `json:"privileged,omitempty"`
	Modules     []*MenuModule `json:"modules"`
}

// MenuModule is one entitled module with its visible sections.
type MenuModule struct {
	ID       string         `json:"id"`
	Code     string         `json:"code"`
	Label    string         `json:"label"`
	Icon     string         `json:"icon,omitempty"`
	Color    string         `json:"color,omitempty"`
	Rank     int            `json:"rank"`
	Sections []*MenuSection `json:"sections"`
}

// MenuSection groups visible items inside a module.
type MenuSection struct {
	ID    string      `json:"id"`
	Code  string      `json:"code"`
	Label string      `json:"label"`
	Rank  int         `json:"rank"`
	Items []*MenuItem `json:"items"`
}

// MenuItem is one navigation entry with the caller's merged permission flags
// and its visible submenus.
type MenuItem struct {
	ID       string                  `json:"id"`
	Code     string                  `json:"code"`
	Label    string                  `json:"label"`
	Icon     string                  `json:"icon,omitempty"`
	Route    string                  `json:"route,omitempty"`
	Rank     int                     `json:"rank"`
	Flags    storage.PermissionFlags `json:"flags"`
	Submenus []*MenuItem             `json:"submenus"`
}
