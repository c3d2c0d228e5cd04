// Package router decides which physical store serves a request. Catalog
// reads always hit the central store; tenant-data reads hit either the
// central store (shared mode) or a pooled connection to the tenant's
// dedicated database, whose coordinates live centrally and whose credentials
// are decrypted on demand.
package router

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // dedicated tenant stores are Postgres
	"go.uber.org/zap"

	"erpgate/server/storage"
	"erpgate/server/tenancy"
)

// Scope is the kind of data a caller wants to read.
type Scope int

const (
	// ScopeCatalog targets the vendor catalog; always the central store.
	ScopeCatalog Scope = iota
	// ScopeTenantData targets a tenant's authorization data; the storage
	// mode decides which physical store that is.
	ScopeTenantData
)

var (
	// ErrBackpressure means the tenant's connection pool is exhausted and
	// the acquisition timeout elapsed. Distinct from ErrConnectionUnavailable
	// so callers can apply different retry policies.
	ErrBackpressure = errors.New("tenant store backpressure")

	// ErrConnectionUnavailable means the dedicated store could not be
	// reached after bounded retries.
	ErrConnectionUnavailable = errors.New("tenant store unavailable")
)

// Config tunes pooling and retry behaviour.
type Config struct {
	MaxLeasesPerTenant int           // concurrent leases per dedicated store (default 8)
	AcquireTimeout     time.Duration // wait for a lease before ErrBackpressure (default 2s)
	ConnectAttempts    int           // bounded connect attempts (default 3)
	ConnectBackoff     time.Duration // initial backoff between attempts (default 100ms)
	MetadataTTL        time.Duration // connection metadata cache TTL (default 30s)
	MaxOpenConns       int           // sql.DB pool cap per dedicated store (default 4)
}

func (c Config) withDefaults() Config {
	if c.MaxLeasesPerTenant <= 0 {
		c.MaxLeasesPerTenant = 8
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 2 * time.Second
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 3
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = 100 * time.Millisecond
	}
	if c.MetadataTTL <= 0 {
		c.MetadataTTL = 30 * time.Second
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
	return c
}

// MetadataSource provides dedicated-store coordinates; satisfied by
// storage.Store.
type MetadataSource interface {
	GetConnectionMetadata(ctx context.Context, tenantID string) (*storage.ConnectionMetadata, error)
}

// DialFunc opens and verifies a database handle for a DSN. Tests substitute
// this to avoid real network dials.
type DialFunc func(ctx context.Context, dsn string) (*sql.DB, error)

// Handle is a routed database handle. Dedicated handles hold a pool lease
// that must be released; central handles release as a no-op.
type Handle struct {
	storage.DBHandle
	release func()
}

// Release returns the lease to the tenant's pool. Safe to call more than
// once.
func (h *Handle) Release() {
	if h.release != nil {
		h.release()
		h.release = nil
	}
}

type metaEntry struct {
	meta      *storage.ConnectionMetadata
	fetchedAt time.Time
}

// Router implements the storage routing rules.
type Router struct {
	central storage.DBHandle
	source  MetadataSource
	cipher  storage.Cipher
	cfg     Config
	log     *zap.Logger
	dial    DialFunc

	poolMu sync.Mutex
	pools  map[string]*tenantPool

	metaMu sync.RWMutex
	meta   map[string]metaEntry
}

// New creates a Router. central is the central store handle; source resolves
// dedicated-store metadata (normally the same store); cipher decrypts
// credentials.
func New(central storage.DBHandle, source MetadataSource, cipher storage.Cipher, cfg Config, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		central: central,
		source:  source,
		cipher:  cipher,
		cfg:     cfg.withDefaults(),
		log:     log,
		pools:   make(map[string]*tenantPool),
		meta:    make(map[string]metaEntry),
	}
	r.dial = r.defaultDial
	return r
}

// SetDialFunc overrides how dedicated stores are opened. Test hook.
func (r *Router) SetDialFunc(dial DialFunc) { r.dial = dial }

// Acquire returns a handle to the store that owns the requested scope for
// this tenant.
func (r *Router) Acquire(ctx context.Context, tc tenancy.TenantContext, scope Scope) (*Handle, error) {
	if scope == ScopeCatalog || tc.StorageMode == storage.StorageModeShared {
		return &Handle{DBHandle: r.central}, nil
	}
	return r.acquireDedicated(ctx, tc)
}

func (r *Router) acquireDedicated(ctx context.Context, tc tenancy.TenantContext) (*Handle, error) {
	pool := r.pool(tc.TenantID)

	if err := pool.lease(ctx, r.cfg.AcquireTimeout); err != nil {
		return nil, err
	}

	db, err := pool.ensureOpen(ctx, func(ctx context.Context) (*sql.DB, error) {
		return r.open(ctx, tc.TenantID)
	})
	if err != nil {
		pool.unlease()
		return nil, err
	}

	return &Handle{
		DBHandle: storage.DBHandle{DB: db, Dialect: &storage.PostgresDialect{}},
		release:  pool.unlease,
	}, nil
}

func (r *Router) pool(tenantID string) *tenantPool {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	p, ok := r.pools[tenantID]
	if !ok {
		p = newTenantPool(r.cfg.MaxLeasesPerTenant)
		r.pools[tenantID] = p
	}
	return p
}

// open resolves metadata, decrypts credentials and dials the dedicated store
// with bounded exponential backoff.
func (r *Router) open(ctx context.Context, tenantID string) (*sql.DB, error) {
	meta, err := r.metadata(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	creds, err := storage.DecryptCredentials(r.cipher, meta.EncryptedCredentials)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", creds.User, creds.Password, meta.Host, meta.Port, meta.DBName)

	var db *sql.DB
	attempt := 0
	operation := func() error {
		attempt++
		var dialErr error
		db, dialErr = r.dial(ctx, dsn)
		if dialErr != nil {
			r.log.Warn("dedicated store connect failed",
				zap.String("tenant_id", tenantID),
				zap.String("host", meta.Host),
				zap.Int("attempt", attempt),
				zap.Error(dialErr))
		}
		return dialErr
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.ConnectBackoff
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall clock
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.cfg.ConnectAttempts-1)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("%w: tenant %s after %d attempts: %v",
			ErrConnectionUnavailable, tenantID, attempt, err)
	}
	if r.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(r.cfg.MaxOpenConns)
	}
	r.log.Info("dedicated store connected", zap.String("tenant_id", tenantID), zap.String("host", meta.Host))
	return db, nil
}

// metadata returns connection metadata through a short-TTL cache.
func (r *Router) metadata(ctx context.Context, tenantID string) (*storage.ConnectionMetadata, error) {
	r.metaMu.RLock()
	entry, ok := r.meta[tenantID]
	r.metaMu.RUnlock()
	if ok && time.Since(entry.fetchedAt) <= r.cfg.MetadataTTL {
		return entry.meta, nil
	}

	meta, err := r.source.GetConnectionMetadata(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	r.metaMu.Lock()
	r.meta[tenantID] = metaEntry{meta: meta, fetchedAt: time.Now()}
	r.metaMu.Unlock()
	return meta, nil
}

func (r *Router) defaultDial(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes every open dedicated-store pool. The central handle is owned
// by the central store and closed there.
func (r *Router) Close() error {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	var firstErr error
	for id, p := range r.pools {
		if err := p.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing pool for tenant %s: %w", id, err)
		}
	}
	r.pools = make(map[string]*tenantPool)
	return firstErr
}
