package tenants

import "errors"

// ErrNotFound is returned when no tenant matches a lookup.
var ErrNotFound = errors.New("tenant not found")

// Tenant is the pipeline's read-only view of a customer account.
type Tenant struct {
	ID                int64
	Name              string
	PlatformAccountID string
	AccessToken       string
	ModelAPIKey       string
	Active            bool
}
