package model

import "time"

// User is a master-catalog credential record. Users are never physically
// deleted; they are deactivated instead so audit history stays consistent.
type User struct {
	ID             string    `bson:"_id" json:"id"`
	Email          string    `bson:"email" json:"email"`
	PasswordDigest string    `bson:"password_digest" json:"-"`
	Role           Role      `bson:"role" json:"role"`
	TenantKey      string    `bson:"tenant_key,omitempty" json:"tenantKey,omitempty"`
	Active         bool      `bson:"active" json:"active"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}

// IsSuperadmin reports whether the user is a superadmin. Superadmins carry no
// tenant reference and may act across all tenants.
func (u *User) IsSuperadmin() bool {
	return u.Role == RoleSuperadmin
}
