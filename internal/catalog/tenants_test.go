package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avtenantd/internal/cache"
	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/store"
)

func TestTenantsCreateAndLookup(t *testing.T) {
	_, tenants := newTestCatalog(t)
	ctx := context.Background()

	created, err := tenants.Create(ctx, "Acme Corp", "acme", model.TenantProvisioning)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "tenant_acme", created.StoreName)
	assert.Equal(t, model.TenantProvisioning, created.Status)

	byID, err := tenants.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", byID.RoutingKey)

	byKey, err := tenants.GetByRoutingKey(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byKey.ID)

	_, err = tenants.GetByID(ctx, "absent")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = tenants.GetByRoutingKey(ctx, "absent")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestTenantsRoutingKeyCollision(t *testing.T) {
	_, tenants := newTestCatalog(t)
	ctx := context.Background()

	_, err := tenants.Create(ctx, "Acme Corp", "acme", model.TenantActive)
	require.NoError(t, err)

	_, err = tenants.Create(ctx, "Another Acme", "acme", model.TenantActive)
	assert.ErrorIs(t, err, ErrTenantExists)

	// The collision must not have touched the existing record.
	existing, err := tenants.GetByRoutingKey(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", existing.Name)
}

func TestTenantsRejectInvalidRoutingKey(t *testing.T) {
	_, tenants := newTestCatalog(t)

	_, err := tenants.Create(context.Background(), "Bad", "Not A Slug", model.TenantActive)
	assert.Error(t, err)
}

func TestTenantsStatusTransitions(t *testing.T) {
	_, tenants := newTestCatalog(t)
	ctx := context.Background()

	created, err := tenants.Create(ctx, "Acme", "acme", model.TenantProvisioning)
	require.NoError(t, err)

	active, err := tenants.UpdateStatus(ctx, created.ID, model.TenantActive)
	require.NoError(t, err)
	assert.Equal(t, model.TenantActive, active.Status)

	// Active cannot jump back to provisioning.
	_, err = tenants.UpdateStatus(ctx, created.ID, model.TenantProvisioning)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	suspended, err := tenants.UpdateStatus(ctx, created.ID, model.TenantSuspended)
	require.NoError(t, err)
	assert.Equal(t, model.TenantSuspended, suspended.Status)

	deleted, err := tenants.UpdateStatus(ctx, created.ID, model.TenantDeleted)
	require.NoError(t, err)
	assert.Equal(t, model.TenantDeleted, deleted.Status)

	// Deleted is terminal.
	_, err = tenants.UpdateStatus(ctx, created.ID, model.TenantActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTenantsList(t *testing.T) {
	_, tenants := newTestCatalog(t)
	ctx := context.Background()

	for _, key := range []string{"acme", "globex", "initech"} {
		_, err := tenants.Create(ctx, key, key, model.TenantActive)
		require.NoError(t, err)
	}

	listed, err := tenants.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 3)

	listed, err = tenants.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "globex", listed[0].RoutingKey)
}

func TestTenantsUpdateName(t *testing.T) {
	_, tenants := newTestCatalog(t)
	ctx := context.Background()

	created, err := tenants.Create(ctx, "Acme", "acme", model.TenantActive)
	require.NoError(t, err)

	renamed, err := tenants.UpdateName(ctx, created.ID, "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", renamed.Name)
	assert.Equal(t, "acme", renamed.RoutingKey)

	_, err = tenants.UpdateName(ctx, "absent", "X")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestTenantsRemove(t *testing.T) {
	_, tenants := newTestCatalog(t)
	ctx := context.Background()

	created, err := tenants.Create(ctx, "Acme", "acme", model.TenantProvisioning)
	require.NoError(t, err)

	require.NoError(t, tenants.Remove(ctx, created.ID, created.RoutingKey))

	_, err = tenants.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestTenantsCachedLookup(t *testing.T) {
	driver := store.NewMemoryDriver("master")
	c, err := cache.New(&config.CacheConfig{
		Enabled:    true,
		Type:       config.CacheTypeMemory,
		MaxEntries: 100,
		TTL:        config.Duration(time.Minute),
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	users := NewUsers(driver.Master(), nil)
	tenants := NewTenants(driver.Master(), c, nil)
	require.NoError(t, Bootstrap(context.Background(), users, tenants))
	ctx := context.Background()

	created, err := tenants.Create(ctx, "Acme", "acme", model.TenantActive)
	require.NoError(t, err)

	// First lookup populates the cache; StoreName must survive the round trip.
	first, err := tenants.GetByRoutingKey(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme", first.StoreName)

	ok, err := c.Exists(ctx, "tenant:acme")
	require.NoError(t, err)
	assert.True(t, ok)

	cached, err := tenants.GetByRoutingKey(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, created.ID, cached.ID)
	assert.Equal(t, "tenant_acme", cached.StoreName)

	// Status changes drop the cached record.
	_, err = tenants.UpdateStatus(ctx, created.ID, model.TenantSuspended)
	require.NoError(t, err)

	ok, err = c.Exists(ctx, "tenant:acme")
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err := tenants.GetByRoutingKey(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, model.TenantSuspended, reloaded.Status)
}
