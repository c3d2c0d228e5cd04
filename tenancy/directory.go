package tenancy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"erpgate/server/storage"
)

// Loader fetches the active tenant set, normally
// storage.Store.ListActiveTenants.
type Loader func(ctx context.Context) ([]*storage.Tenant, error)

type snapshot struct {
	bySubdomain map[string]*storage.Tenant
	loadedAt    time.Time
}

// Directory is a read-mostly cache of the tenant directory. Lookups hit an
// immutable snapshot swapped atomically on refresh, so the request path never
// takes a lock. A stale snapshot keeps serving while one goroutine refreshes.
type Directory struct {
	loader  Loader
	ttl     time.Duration
	log     *zap.Logger
	current atomic.Pointer[snapshot]

	refreshMu sync.Mutex // serializes refreshes, never held on the read path
}

// NewDirectory creates a tenant directory with the given snapshot TTL.
func NewDirectory(loader Loader, ttl time.Duration, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{loader: loader, ttl: ttl, log: log}
}

// Lookup returns the active tenant for a subdomain, refreshing the snapshot
// first when it has expired. A missing or inactive tenant returns (nil, nil);
// only loader failures produce an error.
func (d *Directory) Lookup(ctx context.Context, subdomain string) (*storage.Tenant, error) {
	snap := d.current.Load()
	if snap == nil || time.Since(snap.loadedAt) > d.ttl {
		fresh, err := d.refresh(ctx)
		if err != nil {
			if snap == nil {
				return nil, err
			}
			// Serve the stale snapshot rather than failing the request;
			// the next lookup retries the refresh.
			d.log.Warn("tenant directory refresh failed, serving stale snapshot",
				zap.Error(err), zap.Time("loaded_at", snap.loadedAt))
		} else {
			snap = fresh
		}
	}
	return snap.bySubdomain[subdomain], nil
}

// Invalidate drops the current snapshot so the next lookup reloads.
func (d *Directory) Invalidate() {
	d.current.Store(nil)
}

func (d *Directory) refresh(ctx context.Context) (*snapshot, error) {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if snap := d.current.Load(); snap != nil && time.Since(snap.loadedAt) <= d.ttl {
		return snap, nil
	}

	tenants, err := d.loader(ctx)
	if err != nil {
		return nil, err
	}
	fresh := &snapshot{
		bySubdomain: make(map[string]*storage.Tenant, len(tenants)),
		loadedAt:    time.Now(),
	}
	for _, t := range tenants {
		if t.Active && t.Subdomain != "" {
			fresh.bySubdomain[t.Subdomain] = t
		}
	}
	d.current.Store(fresh)
	d.log.Debug("tenant directory refreshed", zap.Int("tenants", len(fresh.bySubdomain)))
	return fresh, nil
}
