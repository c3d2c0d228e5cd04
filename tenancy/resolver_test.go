package tenancy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"erpgate/server/storage"
)

func TestSubdomainFromHost(t *testing.T) {
	t.Parallel()

	cases := []struct {
		host string
		want string
	}{
		{"acme.erp.example.com", "acme"},
		{"acme.erp.example.com:8443", "acme"},
		{"ACME.erp.example.com", "acme"},
		{"localhost", "localhost"},
		{"localhost:9090", "localhost"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := SubdomainFromHost(tc.host); got != tc.want {
			t.Fatalf("SubdomainFromHost(%q) = %q, want %q", tc.host, got, tc.want)
		}
	}
}

func staticLoader(tenants ...*storage.Tenant) Loader {
	return func(ctx context.Context) ([]*storage.Tenant, error) {
		return tenants, nil
	}
}

func TestResolveKnownTenant(t *testing.T) {
	t.Parallel()

	dir := NewDirectory(staticLoader(
		&storage.Tenant{ID: "t-acme", Subdomain: "acme", StorageMode: storage.StorageModeDedicated, Active: true},
		&storage.Tenant{ID: "t-beta", Subdomain: "beta", StorageMode: storage.StorageModeShared, Active: true},
	), time.Minute, nil)
	r := NewResolver(dir)

	tc, err := r.Resolve(context.Background(), "acme.erp.example.com:443")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tc.TenantID != "t-acme" || tc.StorageMode != storage.StorageModeDedicated {
		t.Fatalf("unexpected context: %+v", tc)
	}
}

func TestResolveUnknownOrInactive(t *testing.T) {
	t.Parallel()

	dir := NewDirectory(staticLoader(
		&storage.Tenant{ID: "t-off", Subdomain: "off", StorageMode: storage.StorageModeShared, Active: false},
	), time.Minute, nil)
	r := NewResolver(dir)

	for _, host := range []string{"nobody.erp.example.com", "off.erp.example.com", ""} {
		_, err := r.Resolve(context.Background(), host)
		if !errors.Is(err, ErrTenantUnresolved) {
			t.Fatalf("Resolve(%q): expected ErrTenantUnresolved, got %v", host, err)
		}
	}
}

func TestDirectoryCachesUntilTTL(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	loads := 0
	loader := func(ctx context.Context) ([]*storage.Tenant, error) {
		mu.Lock()
		loads++
		mu.Unlock()
		return []*storage.Tenant{
			{ID: "t1", Subdomain: "one", StorageMode: storage.StorageModeShared, Active: true},
		}, nil
	}

	dir := NewDirectory(loader, time.Hour, nil)
	for i := 0; i < 5; i++ {
		if _, err := dir.Lookup(context.Background(), "one"); err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if loads != 1 {
		t.Fatalf("expected a single load within TTL, got %d", loads)
	}
}

func TestDirectoryInvalidateForcesReload(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	loads := 0
	loader := func(ctx context.Context) ([]*storage.Tenant, error) {
		mu.Lock()
		loads++
		mu.Unlock()
		return nil, nil
	}

	dir := NewDirectory(loader, time.Hour, nil)
	dir.Lookup(context.Background(), "x")
	dir.Invalidate()
	dir.Lookup(context.Background(), "x")

	mu.Lock()
	defer mu.Unlock()
	if loads != 2 {
		t.Fatalf("expected reload after Invalidate, got %d loads", loads)
	}
}

func TestDirectoryServesStaleOnLoaderFailure(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	fail := false
	loader := func(ctx context.Context) ([]*storage.Tenant, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errors.New("store down")
		}
		return []*storage.Tenant{
			{ID: "t1", Subdomain: "one", StorageMode: storage.StorageModeShared, Active: true},
		}, nil
	}

	// Zero TTL: every lookup wants a refresh.
	dir := NewDirectory(loader, 0, nil)
	if _, err := dir.Lookup(context.Background(), "one"); err != nil {
		t.Fatalf("initial Lookup failed: %v", err)
	}

	mu.Lock()
	fail = true
	mu.Unlock()

	got, err := dir.Lookup(context.Background(), "one")
	if err != nil {
		t.Fatalf("expected stale snapshot to serve, got error: %v", err)
	}
	if got == nil || got.ID != "t1" {
		t.Fatalf("stale snapshot lookup returned %+v", got)
	}
}
