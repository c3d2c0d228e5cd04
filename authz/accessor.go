// Package authz reads a tenant's authorization data through the connection
// router: effective roles and menu permission grants. Any storage failure
// fails closed, so a degraded tenant store can never widen access.
package authz

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"erpgate/server/router"
	"erpgate/server/storage"
	"erpgate/server/tenancy"
)

// ErrAuthorizationUnavailable means authorization data could not be read.
// Callers must treat the user as having no permissions.
var ErrAuthorizationUnavailable = errors.New("authorization data unavailable")

// Accessor routes authorization reads to the store that owns the tenant's
// data, central for shared tenants and a pooled dedicated connection
// otherwise.
type Accessor struct {
	router *router.Router
	log    *zap.Logger
}

// NewAccessor creates an authorization accessor over a connection router.
func NewAccessor(r *router.Router, log *zap.Logger) *Accessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Accessor{router: r, log: log}
}

// EffectiveRoles returns the roles a user currently holds in the tenant,
// strongest access level first. Expired or inactive assignments are excluded
// at the store.
func (a *Accessor) EffectiveRoles(ctx context.Context, tc tenancy.TenantContext, userID string) ([]*storage.Role, error) {
	h, err := a.router.Acquire(ctx, tc, router.ScopeTenantData)
	if err != nil {
		return nil, a.failClosed(tc, "effective roles", err)
	}
	defer h.Release()

	roles, err := storage.NewAuthStore(h.DBHandle).EffectiveRoles(ctx, tc.TenantID, userID)
	if err != nil {
		return nil, a.failClosed(tc, "effective roles", err)
	}
	return roles, nil
}

// Grants returns the tenant's menu permission grants for the given role set,
// keyed by node id with flags OR-merged across roles. An empty role set
// yields an empty map, not an error.
func (a *Accessor) Grants(ctx context.Context, tc tenancy.TenantContext, roleIDs []string) (map[string]storage.PermissionFlags, error) {
	if len(roleIDs) == 0 {
		return map[string]storage.PermissionFlags{}, nil
	}

	h, err := a.router.Acquire(ctx, tc, router.ScopeTenantData)
	if err != nil {
		return nil, a.failClosed(tc, "grants", err)
	}
	defer h.Release()

	grants, err := storage.NewAuthStore(h.DBHandle).Grants(ctx, tc.TenantID, roleIDs)
	if err != nil {
		return nil, a.failClosed(tc, "grants", err)
	}
	return grants, nil
}

// failClosed maps any underlying failure to ErrAuthorizationUnavailable.
// Backpressure and caller cancellation keep their identity so callers can
// distinguish an overloaded pool from a broken store.
func (a *Accessor) failClosed(tc tenancy.TenantContext, op string, err error) error {
	if errors.Is(err, router.ErrBackpressure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	a.log.Warn("authorization read failed",
		zap.String("tenant_id", tc.TenantID),
		zap.String("op", op),
		zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrAuthorizationUnavailable, op, err)
}
