// Package token implements the token service: issuing, verifying, and
// refreshing the signed claim sets that carry identity between requests.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/store"
)

// SubjectStore resolves token subjects against the credential store. A
// missing subject is reported as catalog.ErrUserNotFound; any other error is
// treated as a store failure.
type SubjectStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Pair is an access/refresh token pair.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Service issues, verifies, and refreshes tokens.
type Service struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	clockSkew   time.Duration
	revoking    bool
	subjects    SubjectStore
	revocations *Revocations
	logger      observability.Logger
	metrics     *Metrics
	now         func() time.Time
}

// ServiceOption is a functional option for the service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger observability.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServiceMetrics sets the metrics.
func WithServiceMetrics(metrics *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service. A missing signing secret is a
// configuration error, fatal at startup.
func NewService(cfg config.AuthConfig, subjects SubjectStore, revocations *Revocations, opts ...ServiceOption) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: token signing secret is not configured", config.ErrConfig)
	}
	if subjects == nil {
		return nil, fmt.Errorf("%w: subject store is required", config.ErrConfig)
	}

	s := &Service{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		accessTTL:   cfg.AccessTTL.Duration(),
		refreshTTL:  cfg.RefreshTTL.Duration(),
		clockSkew:   cfg.ClockSkew.Duration(),
		revoking:    cfg.Revocation.Enabled,
		subjects:    subjects,
		revocations: revocations,
		logger:      observability.NopLogger(),
		now:         time.Now,
	}

	if s.accessTTL <= 0 {
		s.accessTTL = 15 * time.Minute
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 7 * 24 * time.Hour
	}
	if s.clockSkew < 0 {
		s.clockSkew = 0
	}
	if s.revocations == nil {
		s.revocations = NewRevocations(nil, s.logger)
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = NewMetrics("tenantd")
	}

	return s, nil
}

// RevocationEnabled reports whether refresh rotation tracks revoked tokens.
// When disabled, a rotated refresh token stays replayable until expiry.
func (s *Service) RevocationEnabled() bool {
	return s.revoking
}

// Issue builds and signs a token of the given kind for a user.
func (s *Service) Issue(user *model.User, kind Kind) (string, *Claims, error) {
	ttl := s.accessTTL
	if kind == KindRefresh {
		ttl = s.refreshTTL
	}

	now := s.now().UTC()
	claims := &Claims{
		Subject:   user.ID,
		TenantKey: "",
		Role:      user.Role,
		Kind:      kind,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if !user.IsSuperadmin() {
		claims.TenantKey = user.TenantKey
	}

	builder := jwt.NewBuilder().
		Issuer(s.issuer).
		Subject(claims.Subject).
		JwtID(claims.ID).
		IssuedAt(claims.IssuedAt).
		Expiration(claims.ExpiresAt).
		Claim(claimRole, string(claims.Role)).
		Claim(claimKind, string(claims.Kind))
	if claims.TenantKey != "" {
		builder = builder.Claim(claimTenant, claims.TenantKey)
	}

	tok, err := builder.Build()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.metrics.recordIssued(kind)
	return string(signed), claims, nil
}

// IssuePair issues an access/refresh pair for a user.
func (s *Service) IssuePair(user *model.User) (*Pair, error) {
	access, accessClaims, err := s.Issue(user, KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.Issue(user, KindRefresh)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
	}, nil
}

// Verify validates a raw token of the expected kind and returns its claims.
// Failures map onto the token error taxonomy: malformed, bad signature,
// expired, wrong kind, revoked.
func (s *Service) Verify(ctx context.Context, raw string, expected Kind) (*Claims, error) {
	// Parse structure first so malformed input is distinguishable from a
	// bad signature.
	if _, err := jwt.Parse([]byte(raw), jwt.WithVerify(false), jwt.WithValidate(false)); err != nil {
		s.metrics.recordVerifyFailure("malformed")
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(false))
	if err != nil {
		s.metrics.recordVerifyFailure("signature")
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalidSignature, err)
	}

	err = jwt.Validate(tok,
		jwt.WithAcceptableSkew(s.clockSkew),
		jwt.WithClock(jwt.ClockFunc(s.now)))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			s.metrics.recordVerifyFailure("expired")
			return nil, ErrTokenExpired
		}
		s.metrics.recordVerifyFailure("invalid")
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, err := claimsFromToken(tok)
	if err != nil {
		s.metrics.recordVerifyFailure("claims")
		return nil, err
	}

	if claims.Kind != expected {
		s.metrics.recordVerifyFailure("kind")
		return nil, fmt.Errorf("%w: have %s, want %s", ErrWrongTokenKind, claims.Kind, expected)
	}

	if claims.Kind == KindRefresh && s.revoking && s.revocations.IsRevoked(ctx, claims.ID) {
		s.metrics.recordVerifyFailure("revoked")
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// Refresh verifies a refresh token, confirms the subject is still active,
// rotates the refresh token, and returns a fresh pair. The rotated token's
// identifier joins the revocation set when tracking is enabled.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*Pair, error) {
	claims, err := s.Verify(ctx, rawRefresh, KindRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.subjects.GetByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, catalog.ErrUserNotFound):
		return nil, fmt.Errorf("%w: %v", ErrSubjectInactive, err)
	case err != nil:
		// A catalog outage is not a verdict on the subject.
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if !user.Active {
		return nil, ErrSubjectInactive
	}

	pair, err := s.IssuePair(user)
	if err != nil {
		return nil, err
	}

	if s.revoking {
		// TTL covers only the old token's remaining lifetime; after that
		// expiry rejects it anyway.
		remaining := claims.ExpiresAt.Sub(s.now()) + s.clockSkew
		if err := s.revocations.Revoke(ctx, claims.ID, remaining); err != nil {
			return nil, fmt.Errorf("failed to revoke rotated token: %w", err)
		}
	}

	s.metrics.recordRotation()
	s.logger.Debug("refresh token rotated",
		observability.String("subject", claims.Subject))

	return pair, nil
}

// claimsFromToken extracts the service claims from a verified JWT.
func claimsFromToken(tok jwt.Token) (*Claims, error) {
	claims := &Claims{
		Subject:   tok.Subject(),
		ID:        tok.JwtID(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}

	roleRaw, ok := tok.Get(claimRole)
	if !ok {
		return nil, fmt.Errorf("%w: missing role claim", ErrTokenMalformed)
	}
	roleStr, _ := roleRaw.(string)
	role, err := model.ParseRole(roleStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	claims.Role = role

	kindRaw, ok := tok.Get(claimKind)
	if !ok {
		return nil, fmt.Errorf("%w: missing kind claim", ErrTokenMalformed)
	}
	kindStr, _ := kindRaw.(string)
	switch Kind(kindStr) {
	case KindAccess, KindRefresh:
		claims.Kind = Kind(kindStr)
	default:
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrTokenMalformed, kindStr)
	}

	if tenantRaw, ok := tok.Get(claimTenant); ok {
		claims.TenantKey, _ = tenantRaw.(string)
	}

	return claims, nil
}
