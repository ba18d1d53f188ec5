package model

import "fmt"

// Role is the closed set of roles known to the service.
type Role string

const (
	// RoleSuperadmin may act across all tenants and manage the tenant catalog.
	RoleSuperadmin Role = "superadmin"

	// RoleTenantAdmin administers a single tenant.
	RoleTenantAdmin Role = "tenant_admin"

	// RoleMember is a regular tenant-scoped user.
	RoleMember Role = "member"
)

// roleLevels defines the strict ordering Superadmin > TenantAdmin > Member.
var roleLevels = map[Role]int{
	RoleMember:      1,
	RoleTenantAdmin: 2,
	RoleSuperadmin:  3,
}

// Level returns the privilege level of the role. Unknown roles have level 0,
// below every valid role.
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether the role meets or exceeds the required role.
func (r Role) AtLeast(required Role) bool {
	return r.Valid() && required.Valid() && r.Level() >= required.Level()
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role string.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
