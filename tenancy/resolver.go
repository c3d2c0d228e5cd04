package tenancy

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// Resolver maps a request's Host header to a tenant identity and storage
// mode. The subdomain is the sole tenant discriminator; tenant ids arriving
// in request payloads are ignored by design.
type Resolver struct {
	directory *Directory
}

// NewResolver creates a resolver over a tenant directory.
func NewResolver(directory *Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve extracts the leftmost host label and looks it up in the tenant
// directory. Unknown or inactive tenants yield ErrTenantUnresolved.
func (r *Resolver) Resolve(ctx context.Context, host string) (TenantContext, error) {
	subdomain := SubdomainFromHost(host)
	if subdomain == "" {
		return TenantContext{}, fmt.Errorf("host %q: %w", host, ErrTenantUnresolved)
	}

	tenant, err := r.directory.Lookup(ctx, subdomain)
	if err != nil {
		return TenantContext{}, fmt.Errorf("tenant directory lookup: %w", err)
	}
	if tenant == nil || !tenant.Active {
		return TenantContext{}, fmt.Errorf("subdomain %q: %w", subdomain, ErrTenantUnresolved)
	}

	return TenantContext{
		TenantID:    tenant.ID,
		Subdomain:   tenant.Subdomain,
		StorageMode: tenant.StorageMode,
	}, nil
}

// SubdomainFromHost strips any port and returns the leftmost DNS label,
// lowercased. Returns "" for empty or malformed hosts.
func SubdomainFromHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	label, _, _ := strings.Cut(host, ".")
	return label
}
