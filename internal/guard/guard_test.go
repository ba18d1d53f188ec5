package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/router"
	"github.com/vyrodovalexey/avtenantd/internal/store"
	"github.com/vyrodovalexey/avtenantd/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type guardFixture struct {
	guard   *Guard
	tokens  *token.Service
	users   *catalog.Users
	tenants *catalog.Tenants
	router  *router.Router
	driver  *store.MemoryDriver
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	driver := store.NewMemoryDriver("master")
	users := catalog.NewUsers(driver.Master(), nil)
	tenants := catalog.NewTenants(driver.Master(), nil, nil)
	require.NoError(t, catalog.Bootstrap(context.Background(), users, tenants))

	tokens, err := token.NewService(config.AuthConfig{
		Secret:     testSecret,
		Issuer:     "test",
		AccessTTL:  config.Duration(time.Minute),
		RefreshTTL: config.Duration(time.Hour),
		Revocation: config.RevocationConfig{Enabled: true},
	}, users, token.NewRevocations(nil, nil),
		token.WithServiceMetrics(token.NewMetricsWithRegisterer("test", prometheus.NewRegistry())))
	require.NoError(t, err)

	r := router.New(config.RouterConfig{
		IdleTTL:        config.Duration(time.Minute),
		SweepInterval:  config.Duration(time.Minute),
		MaxRetries:     1,
		InitialBackoff: config.Duration(time.Millisecond),
		MaxBackoff:     config.Duration(time.Millisecond),
	}, tenants, driver,
		router.WithMetrics(router.NewMetricsWithRegisterer("test", prometheus.NewRegistry())))
	t.Cleanup(r.Close)

	g := New(tokens, r,
		WithMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())))

	return &guardFixture{
		guard:   g,
		tokens:  tokens,
		users:   users,
		tenants: tenants,
		router:  r,
		driver:  driver,
	}
}

func (f *guardFixture) engine(t *testing.T, minRole model.Role) *gin.Engine {
	t.Helper()

	engine := gin.New()
	engine.GET("/protected", f.guard.Require(minRole), func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{
			"userID":    identity.UserID,
			"tenantKey": identity.TenantKey,
			"hasStore":  identity.Store != nil,
		})
	})
	return engine
}

func (f *guardFixture) activeTenant(t *testing.T, key string) {
	t.Helper()
	_, err := f.tenants.Create(context.Background(), key, key, model.TenantActive)
	require.NoError(t, err)
}

func (f *guardFixture) accessToken(t *testing.T, role model.Role, tenantKey string) string {
	t.Helper()
	raw, _, err := f.tokens.Issue(&model.User{
		ID:        "user-" + string(role),
		Role:      role,
		TenantKey: tenantKey,
		Active:    true,
	}, token.KindAccess)
	require.NoError(t, err)
	return raw
}

func doRequest(engine *gin.Engine, bearer, tenantHeaderValue string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if tenantHeaderValue != "" {
		req.Header.Set("X-Tenant-Key", tenantHeaderValue)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestGuardMissingToken(t *testing.T) {
	f := newGuardFixture(t)
	engine := f.engine(t, model.RoleMember)

	w := doRequest(engine, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), ReasonUnauthenticated)

	// A non-bearer scheme is treated the same as no token.
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuardMalformedToken(t *testing.T) {
	f := newGuardFixture(t)
	engine := f.engine(t, model.RoleMember)

	w := doRequest(engine, "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), ReasonTokenMalformed)
}

func TestGuardExpiredToken(t *testing.T) {
	f := newGuardFixture(t)
	f.activeTenant(t, "acme")
	engine := f.engine(t, model.RoleMember)

	raw := f.accessToken(t, model.RoleMember, "acme")

	token.WithClock(func() time.Time {
		return time.Now().Add(time.Hour)
	})(f.tokens)

	w := doRequest(engine, raw, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), ReasonTokenExpired)
}

func TestGuardAuthorizedMember(t *testing.T) {
	f := newGuardFixture(t)
	f.activeTenant(t, "acme")
	engine := f.engine(t, model.RoleMember)

	w := doRequest(engine, f.accessToken(t, model.RoleMember, "acme"), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tenantKey":"acme"`)
	assert.Contains(t, w.Body.String(), `"hasStore":true`)
}

func TestGuardInsufficientRole(t *testing.T) {
	f := newGuardFixture(t)
	f.activeTenant(t, "acme")
	engine := f.engine(t, model.RoleTenantAdmin)

	w := doRequest(engine, f.accessToken(t, model.RoleMember, "acme"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonInsufficientRole)
}

func TestGuardTenantNotFound(t *testing.T) {
	f := newGuardFixture(t)
	engine := f.engine(t, model.RoleMember)

	w := doRequest(engine, f.accessToken(t, model.RoleMember, "ghost"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonTenantNotFound)
}

func TestGuardSuspendedTenant(t *testing.T) {
	f := newGuardFixture(t)
	tenant, err := f.tenants.Create(context.Background(), "acme", "acme", model.TenantActive)
	require.NoError(t, err)
	engine := f.engine(t, model.RoleMember)

	raw := f.accessToken(t, model.RoleMember, "acme")

	// Works while active.
	w := doRequest(engine, raw, "")
	require.Equal(t, http.StatusOK, w.Code)

	// Suspension evicts routing state, so the still-valid token is refused.
	_, err = f.tenants.UpdateStatus(context.Background(), tenant.ID, model.TenantSuspended)
	require.NoError(t, err)
	f.router.Invalidate("acme")

	w = doRequest(engine, raw, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), ReasonTenantUnavailable)
}

func TestGuardStoreUnavailable(t *testing.T) {
	f := newGuardFixture(t)
	f.activeTenant(t, "acme")
	engine := f.engine(t, model.RoleMember)

	f.driver.OpenHook = func(name string) error {
		return store.ErrUnavailable
	}

	w := doRequest(engine, f.accessToken(t, model.RoleMember, "acme"), "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), ReasonStoreUnavailable)
}

func TestGuardSuperadminWithoutTenant(t *testing.T) {
	f := newGuardFixture(t)
	engine := f.engine(t, model.RoleSuperadmin)

	// No tenant claim and no header: authorized with no store handle.
	w := doRequest(engine, f.accessToken(t, model.RoleSuperadmin, ""), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hasStore":false`)
}

func TestGuardSuperadminSelectsTenantViaHeader(t *testing.T) {
	f := newGuardFixture(t)
	f.activeTenant(t, "acme")
	engine := f.engine(t, model.RoleSuperadmin)

	w := doRequest(engine, f.accessToken(t, model.RoleSuperadmin, ""), "acme")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tenantKey":"acme"`)
	assert.Contains(t, w.Body.String(), `"hasStore":true`)

	// Selecting an unknown tenant is a denial even for superadmins.
	w = doRequest(engine, f.accessToken(t, model.RoleSuperadmin, ""), "ghost")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGuardMemberHeaderIsIgnored(t *testing.T) {
	f := newGuardFixture(t)
	f.activeTenant(t, "acme")
	f.activeTenant(t, "globex")
	engine := f.engine(t, model.RoleMember)

	// A member's token scope wins over any header.
	w := doRequest(engine, f.accessToken(t, model.RoleMember, "acme"), "globex")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tenantKey":"acme"`)
}
