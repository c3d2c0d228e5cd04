// Package entitlement decides which modules a tenant may use right now.
// The gate reads entitlement rows from the central store and filters them to
// the currently-effective set: active, not expired, and under any usage
// limit. Results are cached per tenant for a short TTL so the menu hot path
// does not hammer the central store.
package entitlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"erpgate/server/storage"
)

// DefaultTTL is how long an activation snapshot is trusted. An entitlement
// change (disable, expiry, limit reached) takes effect within this window.
const DefaultTTL = 30 * time.Second

// Source lists a tenant's entitlement rows; satisfied by storage.Store.
type Source interface {
	ListEntitlements(ctx context.Context, tenantID string) ([]*storage.ModuleEntitlement, error)
}

type snapshot struct {
	moduleIDs []string
	loadedAt  time.Time
}

// Gate caches each tenant's active module set.
type Gate struct {
	source  Source
	ttl     time.Duration
	log     *zap.Logger
	nowFunc func() time.Time

	mu    sync.Mutex
	cache map[string]*snapshot
}

// NewGate creates an activation gate. ttl <= 0 selects DefaultTTL.
func NewGate(source Source, ttl time.Duration, log *zap.Logger) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		source:  source,
		ttl:     ttl,
		log:     log,
		nowFunc: time.Now,
		cache:   make(map[string]*snapshot),
	}
}

// ActiveModules returns the ids of the modules the tenant is currently
// entitled to, in module id order. A tenant with no effective entitlements
// gets an empty set, which renders as an empty menu rather than an error.
func (g *Gate) ActiveModules(ctx context.Context, tenantID string) ([]string, error) {
	g.mu.Lock()
	snap, ok := g.cache[tenantID]
	g.mu.Unlock()
	if ok && time.Since(snap.loadedAt) <= g.ttl {
		return snap.moduleIDs, nil
	}

	entitlements, err := g.source.ListEntitlements(ctx, tenantID)
	if err != nil {
		// Serve the stale snapshot if one exists; entitlements change
		// rarely and a transient store error should not blank the menu.
		if ok {
			g.log.Warn("entitlement refresh failed, serving stale snapshot",
				zap.String("tenant_id", tenantID), zap.Error(err))
			return snap.moduleIDs, nil
		}
		return nil, fmt.Errorf("list entitlements: %w", err)
	}

	now := g.nowFunc()
	ids := make([]string, 0, len(entitlements))
	for _, e := range entitlements {
		if e.Effective(now) {
			ids = append(ids, e.ModuleID)
		}
	}

	g.mu.Lock()
	g.cache[tenantID] = &snapshot{moduleIDs: ids, loadedAt: now}
	g.mu.Unlock()
	return ids, nil
}

// Invalidate drops one tenant's cached snapshot so the next read reloads.
// Called when an entitlement is changed administratively.
func (g *Gate) Invalidate(tenantID string) {
	g.mu.Lock()
	delete(g.cache, tenantID)
	g.mu.Unlock()
}
