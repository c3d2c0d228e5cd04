package router

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// tenantPool bounds concurrent use of one tenant's dedicated store so a
// single noisy tenant cannot starve the rest of the process. Leases are a
// buffered-channel semaphore; the sql.DB underneath additionally caps real
// connections.
type tenantPool struct {
	sem chan struct{}

	mu sync.Mutex
	db *sql.DB
}

func newTenantPool(maxLeases int) *tenantPool {
	return &tenantPool{sem: make(chan struct{}, maxLeases)}
}

// lease blocks for up to timeout waiting for a slot, then fails fast with
// ErrBackpressure. Caller cancellation is honored throughout.
func (p *tenantPool) lease(ctx context.Context, timeout time.Duration) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("pool exhausted after %s: %w", timeout, ErrBackpressure)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *tenantPool) unlease() {
	<-p.sem
}

// ensureOpen returns the pool's database handle, dialing it on first use.
// A failed dial is not cached; the next acquirer retries.
func (p *tenantPool) ensureOpen(ctx context.Context, open func(context.Context) (*sql.DB, error)) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}
	db, err := open(ctx)
	if err != nil {
		return nil, err
	}
	p.db = db
	return db, nil
}

func (p *tenantPool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
