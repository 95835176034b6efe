package domain

import "errors"

// Error taxonomy for the query/permission core. Callers match with errors.Is;
// repositories wrap these with context using fmt.Errorf and %w.
var (
	// ErrNotFound: the requested scope/entity/variable has no catalog entry
	// and no static fallback. User-facing, non-retryable.
	ErrNotFound = errors.New("not found")

	// ErrExecutionFailure: the storage collaborator rejected the composed
	// query. Surfaced as-is; retry policy belongs to the storage layer.
	ErrExecutionFailure = errors.New("query execution failure")

	// ErrPermissionResolution: the permission graph collaborator failed.
	// Propagated unchanged, aborting composition.
	ErrPermissionResolution = errors.New("permission resolution failure")

	// ErrProvisioningPartial: scope creation succeeded at the row level but
	// catalog/permission seeding failed partway after compensation ran.
	ErrProvisioningPartial = errors.New("provisioning partially failed")
)
