// Package guard implements the authorization guard that fronts every
// protected request. Per request it moves through a fixed sequence: extract
// and verify the bearer token, resolve the acting tenant's store, check the
// role, then expose the verified identity to the handler. Handlers obtain
// tenant store handles only through the guard.
package guard

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/router"
	"github.com/vyrodovalexey/avtenantd/internal/store"
	"github.com/vyrodovalexey/avtenantd/internal/token"
)

// Guard errors.
var (
	// ErrUnauthenticated indicates that no bearer token was presented.
	ErrUnauthenticated = errors.New("no bearer token")

	// ErrInsufficientRole indicates that the caller's role does not meet the
	// operation's minimum role.
	ErrInsufficientRole = errors.New("insufficient role")
)

// Denial reason codes surfaced to callers. Internal errors never leak.
const (
	ReasonUnauthenticated   = "unauthenticated"
	ReasonTokenMalformed    = "token_malformed"
	ReasonTokenExpired      = "token_expired"
	ReasonTokenInvalid      = "token_invalid"
	ReasonTokenRevoked      = "token_revoked"
	ReasonSubjectInactive   = "subject_inactive"
	ReasonTenantNotFound    = "tenant_not_found"
	ReasonTenantUnavailable = "tenant_unavailable"
	ReasonInsufficientRole  = "insufficient_role"
	ReasonStoreUnavailable  = "store_unavailable"
)

// identityKey is the gin context key the verified identity lives under.
const identityKey = "tenantd/identity"

// tenantHeader lets a superadmin address a specific tenant's store; tokens
// scoped to a tenant always win over the header.
const tenantHeader = "X-Tenant-Key"

// Identity is what the guard exposes to downstream handlers after a request
// is authorized.
type Identity struct {
	// UserID is the verified subject.
	UserID string

	// Role is the verified role.
	Role model.Role

	// TenantKey is the routing key of the acting tenant. Empty when a
	// superadmin operates without tenant scope.
	TenantKey string

	// Store is the resolved tenant store handle, nil when TenantKey is
	// empty.
	Store store.Handle
}

// Guard is the per-request authorization interceptor.
type Guard struct {
	tokens  *token.Service
	router  *router.Router
	logger  observability.Logger
	metrics *Metrics
}

// Option is a functional option for the guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(g *Guard) {
		g.metrics = metrics
	}
}

// New creates a guard.
func New(tokens *token.Service, r *router.Router, opts ...Option) *Guard {
	g := &Guard{
		tokens: tokens,
		router: r,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics("tenantd")
	}
	return g
}

// Require returns middleware enforcing a minimum role for the protected
// operation. The sequence is strict: token verification, tenant resolution,
// then the role check; no step is skipped or reordered.
func (g *Guard) Require(minRole model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := extractBearer(c.Request)
		if !ok {
			g.deny(c, http.StatusUnauthorized, ReasonUnauthenticated)
			return
		}

		claims, err := g.tokens.Verify(c.Request.Context(), raw, token.KindAccess)
		if err != nil {
			status, reason := mapTokenError(err)
			g.deny(c, status, reason)
			return
		}

		identity := &Identity{
			UserID:    claims.Subject,
			Role:      claims.Role,
			TenantKey: claims.TenantKey,
		}

		// Superadmins carry no tenant scope; they may select one explicitly.
		if identity.TenantKey == "" && claims.Role == model.RoleSuperadmin {
			identity.TenantKey = c.GetHeader(tenantHeader)
		}

		if identity.TenantKey != "" {
			handle, err := g.router.Resolve(c.Request.Context(), identity.TenantKey)
			if err != nil {
				status, reason := mapResolveError(err)
				g.deny(c, status, reason)
				return
			}
			identity.Store = handle
		}

		if !claims.Role.AtLeast(minRole) {
			g.logger.Debug("role check failed",
				observability.String("userID", identity.UserID),
				observability.String("role", claims.Role.String()),
				observability.String("required", minRole.String()))
			g.deny(c, http.StatusForbidden, ReasonInsufficientRole)
			return
		}

		g.metrics.recordDecision("authorized", "")
		c.Set(identityKey, identity)
		c.Next()
	}
}

// deny terminates the request with a denial response carrying the failure
// kind.
func (g *Guard) deny(c *gin.Context, status int, reason string) {
	g.metrics.recordDecision("denied", reason)
	c.AbortWithStatusJSON(status, gin.H{"error": reason})
}

// IdentityFrom returns the verified identity set by the guard.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*Identity)
	return identity, ok
}

// extractBearer pulls the bearer token from the Authorization header.
func extractBearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	if tok == "" {
		return "", false
	}
	return tok, true
}

// mapTokenError maps token service errors to a status and reason code.
func mapTokenError(err error) (int, string) {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized, ReasonTokenExpired
	case errors.Is(err, token.ErrTokenRevoked):
		return http.StatusUnauthorized, ReasonTokenRevoked
	case errors.Is(err, token.ErrTokenInvalidSignature):
		return http.StatusUnauthorized, ReasonTokenInvalid
	case errors.Is(err, token.ErrTokenMalformed),
		errors.Is(err, token.ErrWrongTokenKind):
		return http.StatusUnauthorized, ReasonTokenMalformed
	case errors.Is(err, token.ErrSubjectInactive):
		return http.StatusUnauthorized, ReasonSubjectInactive
	default:
		return http.StatusUnauthorized, ReasonTokenInvalid
	}
}

// mapResolveError maps router errors to a status and reason code.
func mapResolveError(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrTenantNotFound):
		return http.StatusForbidden, ReasonTenantNotFound
	case errors.Is(err, router.ErrTenantUnavailable):
		return http.StatusForbidden, ReasonTenantUnavailable
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, ReasonStoreUnavailable
	default:
		return http.StatusServiceUnavailable, ReasonStoreUnavailable
	}
}
