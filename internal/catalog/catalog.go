// Package catalog provides access to the master catalog: tenant records and
// credential records. All writes go through this package so uniqueness and
// soft-delete rules live in one place.
package catalog

import (
	"context"
	"errors"
)

// Catalog errors.
var (
	// ErrUserNotFound indicates that no user matched the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken indicates that the email is already registered within
	// the tenant scope.
	ErrEmailTaken = errors.New("email already registered")

	// ErrTenantNotFound indicates that no tenant matched the lookup.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantExists indicates a routing key collision.
	ErrTenantExists = errors.New("tenant already exists")

	// ErrInvalidTransition indicates a forbidden tenant status change.
	ErrInvalidTransition = errors.New("invalid tenant status transition")

	// ErrRoutingKeyImmutable indicates an attempt to change the routing key
	// of an active tenant.
	ErrRoutingKeyImmutable = errors.New("routing key is immutable once active")
)

// Collection names in the master catalog.
const (
	usersCollection   = "users"
	tenantsCollection = "tenants"
)

// Bootstrap creates the master catalog indexes. Fatal at startup on failure.
func Bootstrap(ctx context.Context, users *Users, tenants *Tenants) error {
	if err := users.ensureIndexes(ctx); err != nil {
		return err
	}
	return tenants.ensureIndexes(ctx)
}
