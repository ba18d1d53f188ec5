package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type staticSubjects struct {
	users map[string]*model.User
}

func (s *staticSubjects) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, catalog.ErrUserNotFound
}

// outageSubjects simulates a credential store outage.
type outageSubjects struct{}

func (outageSubjects) GetByID(context.Context, string) (*model.User, error) {
	return nil, errors.New("connection refused")
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Secret:     testSecret,
		Issuer:     "avtenantd-test",
		AccessTTL:  config.Duration(time.Minute),
		RefreshTTL: config.Duration(time.Hour),
		ClockSkew:  config.Duration(time.Second),
		Revocation: config.RevocationConfig{Enabled: true},
	}
}

func memberUser() *model.User {
	return &model.User{
		ID:        "user-1",
		Email:     "user@acme.test",
		Role:      model.RoleMember,
		TenantKey: "acme",
		Active:    true,
	}
}

func newTestService(t *testing.T, users ...*model.User) (*Service, *staticSubjects) {
	t.Helper()

	subjects := &staticSubjects{users: make(map[string]*model.User)}
	for _, u := range users {
		subjects.users[u.ID] = u
	}

	svc, err := NewService(testAuthConfig(), subjects, NewRevocations(nil, nil),
		WithServiceMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())))
	require.NoError(t, err)
	return svc, subjects
}

func TestNewServiceRequiresSecret(t *testing.T) {
	cfg := testAuthConfig()
	cfg.Secret = ""

	_, err := NewService(cfg, &staticSubjects{}, nil)
	assert.ErrorIs(t, err, config.ErrConfig)
}

func TestIssueVerifyRoundtrip(t *testing.T) {
	svc, _ := newTestService(t)
	user := memberUser()

	raw, issued, err := svc.Issue(user, KindAccess)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)

	claims, err := svc.Verify(context.Background(), raw, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, model.RoleMember, claims.Role)
	assert.Equal(t, "acme", claims.TenantKey)
	assert.Equal(t, KindAccess, claims.Kind)
}

func TestSuperadminTokenCarriesNoTenant(t *testing.T) {
	svc, _ := newTestService(t)
	root := &model.User{
		ID:     "root-1",
		Role:   model.RoleSuperadmin,
		Active: true,
		// TenantKey would be ignored even if set.
		TenantKey: "acme",
	}

	raw, _, err := svc.Issue(root, KindAccess)
	require.NoError(t, err)

	claims, err := svc.Verify(context.Background(), raw, KindAccess)
	require.NoError(t, err)
	assert.Empty(t, claims.TenantKey)
}

func TestVerifyMalformed(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Verify(context.Background(), "not-a-token", KindAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyBadSignature(t *testing.T) {
	svc, _ := newTestService(t)

	otherCfg := testAuthConfig()
	otherCfg.Secret = "ffffffffffffffffffffffffffffffff"
	other, err := NewService(otherCfg, &staticSubjects{}, nil,
		WithServiceMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())))
	require.NoError(t, err)

	raw, _, err := other.Issue(memberUser(), KindAccess)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), raw, KindAccess)
	assert.ErrorIs(t, err, ErrTokenInvalidSignature)
}

func TestVerifyExpired(t *testing.T) {
	svc, _ := newTestService(t)

	raw, _, err := svc.Issue(memberUser(), KindAccess)
	require.NoError(t, err)

	// Move the clock past expiry plus skew.
	WithClock(func() time.Time {
		return time.Now().Add(2 * time.Minute)
	})(svc)

	_, err = svc.Verify(context.Background(), raw, KindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWithinClockSkew(t *testing.T) {
	svc, _ := newTestService(t)

	raw, _, err := svc.Issue(memberUser(), KindAccess)
	require.NoError(t, err)

	// Just past expiry but inside the skew tolerance.
	WithClock(func() time.Time {
		return time.Now().Add(time.Minute + 500*time.Millisecond)
	})(svc)

	_, err = svc.Verify(context.Background(), raw, KindAccess)
	assert.NoError(t, err)
}

func TestVerifyWrongKind(t *testing.T) {
	svc, _ := newTestService(t)

	raw, _, err := svc.Issue(memberUser(), KindRefresh)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), raw, KindAccess)
	assert.ErrorIs(t, err, ErrWrongTokenKind)
}

func TestRefreshRotation(t *testing.T) {
	user := memberUser()
	svc, _ := newTestService(t, user)
	ctx := context.Background()

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The rotated-out token is one-shot.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// The replacement still works.
	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	user := memberUser()
	svc, _ := newTestService(t, user)

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongTokenKind)
}

func TestRefreshInactiveSubject(t *testing.T) {
	user := memberUser()
	svc, subjects := newTestService(t, user)

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	subjects.users["user-1"].Active = false

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSubjectInactive)
}

func TestRefreshUnknownSubject(t *testing.T) {
	user := memberUser()
	svc, subjects := newTestService(t, user)

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	delete(subjects.users, "user-1")

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSubjectInactive)
}

func TestRefreshCatalogOutageIsNotInactive(t *testing.T) {
	user := memberUser()
	svc, _ := newTestService(t, user)

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	// Same secret, failing credential store: the token verifies but the
	// subject lookup cannot complete.
	down, err := NewService(testAuthConfig(), outageSubjects{}, NewRevocations(nil, nil),
		WithServiceMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())))
	require.NoError(t, err)

	_, err = down.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrSubjectInactive)
}

func TestRefreshReflectsCurrentRole(t *testing.T) {
	user := memberUser()
	svc, subjects := newTestService(t, user)
	ctx := context.Background()

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	// Promote the user; the refreshed access token must carry the new role.
	subjects.users["user-1"].Role = model.RoleTenantAdmin

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	claims, err := svc.Verify(ctx, rotated.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTenantAdmin, claims.Role)
}

func TestRotationDisabledKeepsOldTokenUsable(t *testing.T) {
	user := memberUser()
	subjects := &staticSubjects{users: map[string]*model.User{"user-1": user}}

	cfg := testAuthConfig()
	cfg.Revocation.Enabled = false
	svc, err := NewService(cfg, subjects, NewRevocations(nil, nil),
		WithServiceMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())))
	require.NoError(t, err)
	assert.False(t, svc.RevocationEnabled())

	ctx := context.Background()
	pair, err := svc.IssuePair(user)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Without revocation tracking the old refresh token stays replayable.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}
