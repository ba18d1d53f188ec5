package token

import (
	"time"

	"github.com/vyrodovalexey/avtenantd/internal/model"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	// KindAccess is a short-lived token presented on every request.
	KindAccess Kind = "access"

	// KindRefresh is a long-lived token eligible only for renewal.
	KindRefresh Kind = "refresh"
)

// Private claim names.
const (
	claimRole   = "role"
	claimTenant = "tenant"
	claimKind   = "kind"
)

// Claims is the decoded, verified payload of a token.
type Claims struct {
	// Subject is the user identifier.
	Subject string

	// TenantKey is the routing key of the tenant the token is scoped to.
	// Empty for superadmin tokens, which may act across all tenants.
	TenantKey string

	// Role is the subject's role at issue time.
	Role model.Role

	// Kind is the token kind.
	Kind Kind

	// ID is the unique token identifier used for revocation tracking.
	ID string

	IssuedAt  time.Time
	ExpiresAt time.Time
}
