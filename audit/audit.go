// Package audit records authentication and access events. Recording is
// fire-and-forget: the serving path never blocks on, or fails because of,
// the audit backend.
package audit

import (
	"context"
	"time"
)

// Event kinds emitted by the server.
const (
	EventMenuServed     = "menu.served"
	EventAuthFailed     = "auth.failed"
	EventTenantMismatch = "auth.tenant_mismatch"
	EventTenantUnknown  = "tenant.unresolved"
)

// Event is one audit record.
type Event struct {
	Kind       string    `json:"kind"`
	TenantID   string    `json:"tenant_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Subdomain  string    `json:"subdomain,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// Sink accepts audit events. Implementations must not block the caller.
type Sink interface {
	Record(ctx context.Context, e Event)
	Close() error
}

// NopSink discards every event. Used when auditing is not configured.
type NopSink struct{}

func (NopSink) Record(ctx context.Context, e Event) {}
func (NopSink) Close() error                        { return nil }
