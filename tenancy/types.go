package tenancy

import (
	"errors"

	"erpgate/server/storage"
)

// ErrTenantUnresolved is returned when the request host does not map to an
// active tenant. It is an authentication-tier failure and is never retried.
var ErrTenantUnresolved = errors.New("tenant unresolved")

// TenantContext carries the per-request tenant facts resolved from the Host
// header. It is passed explicitly through the pipeline; many tenants are
// served concurrently by one process, so none of this may live in process
// globals.
type TenantContext struct {
	TenantID    string
	Subdomain   string
	StorageMode storage.StorageMode
}
