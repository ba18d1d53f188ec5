package model

import (
	"fmt"
	"regexp"
	"time"
)

// TenantStatus is the lifecycle status of a tenant.
type TenantStatus string

const (
	// TenantProvisioning means the tenant record exists but its store is not
	// ready yet.
	TenantProvisioning TenantStatus = "provisioning"

	// TenantActive means the tenant is serving requests.
	TenantActive TenantStatus = "active"

	// TenantSuspended means the tenant is temporarily disabled.
	TenantSuspended TenantStatus = "suspended"

	// TenantDeleted is terminal.
	TenantDeleted TenantStatus = "deleted"
)

// Valid reports whether the status is one of the known statuses.
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantProvisioning, TenantActive, TenantSuspended, TenantDeleted:
		return true
	}
	return false
}

// CanTransition reports whether the status may move to the target status.
// Transitions are monotonic except Suspended<->Active; Deleted is terminal.
func (s TenantStatus) CanTransition(to TenantStatus) bool {
	switch s {
	case TenantProvisioning:
		return to == TenantActive || to == TenantDeleted
	case TenantActive:
		return to == TenantSuspended || to == TenantDeleted
	case TenantSuspended:
		return to == TenantActive || to == TenantDeleted
	case TenantDeleted:
		return false
	}
	return false
}

// String implements fmt.Stringer.
func (s TenantStatus) String() string {
	return string(s)
}

// Tenant is a catalog record describing an isolated customer organization.
type Tenant struct {
	ID         string       `bson:"_id" json:"id"`
	Name       string       `bson:"name" json:"name"`
	RoutingKey string       `bson:"routing_key" json:"routingKey"`
	Status     TenantStatus `bson:"status" json:"status"`
	StoreName  string       `bson:"store_name" json:"-"`
	CreatedAt  time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time    `bson:"updated_at" json:"updatedAt"`
}

// routingKeyPattern restricts routing keys to DNS-label style slugs.
var routingKeyPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateRoutingKey checks that a routing key is a usable slug.
func ValidateRoutingKey(key string) error {
	if key == "" {
		return fmt.Errorf("routing key is empty")
	}
	if !routingKeyPattern.MatchString(key) {
		return fmt.Errorf("routing key %q must be a lowercase slug", key)
	}
	return nil
}

// StoreNameForRoutingKey returns the per-tenant database name for a routing
// key. Every tenant gets its own logical database inside the shared cluster.
func StoreNameForRoutingKey(key string) string {
	return "tenant_" + key
}
