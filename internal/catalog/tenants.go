package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/vyrodovalexey/avtenantd/internal/cache"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/store"
)

// tenantCacheTTL bounds staleness of cached tenant records. Status changes
// invalidate explicitly; the TTL covers writers outside this process.
const tenantCacheTTL = 5 * time.Minute

// Tenants is the tenant catalog over the master store. Lookups by routing key
// go through the shared cache when one is configured.
type Tenants struct {
	coll   store.Collection
	cache  cache.Cache
	logger observability.Logger
}

// NewTenants creates a tenant catalog over the master catalog handle.
func NewTenants(master store.Handle, c cache.Cache, logger observability.Logger) *Tenants {
	if c == nil {
		c = cache.NewDisabledCache()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Tenants{
		coll:   master.Collection(tenantsCollection),
		cache:  c,
		logger: logger,
	}
}

func (t *Tenants) ensureIndexes(ctx context.Context) error {
	if err := t.coll.EnsureIndex(ctx, []string{"routing_key"}, true); err != nil {
		return fmt.Errorf("failed to index tenants: %w", err)
	}
	return nil
}

func tenantCacheKey(routingKey string) string {
	return "tenant:" + routingKey
}

// Create inserts a new tenant record. Fails with ErrTenantExists on routing
// key collision without mutating the catalog.
func (t *Tenants) Create(ctx context.Context, name, routingKey string, status model.TenantStatus) (*model.Tenant, error) {
	if err := model.ValidateRoutingKey(routingKey); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tenant := &model.Tenant{
		ID:         uuid.NewString(),
		Name:       name,
		RoutingKey: routingKey,
		Status:     status,
		StoreName:  model.StoreNameForRoutingKey(routingKey),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := t.coll.InsertOne(ctx, tenant); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrTenantExists
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	t.logger.Info("tenant record created",
		observability.String("tenantID", tenant.ID),
		observability.String("routingKey", routingKey),
		observability.String("status", status.String()))

	return tenant, nil
}

// GetByID returns a tenant by identifier.
func (t *Tenants) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := t.coll.FindOne(ctx, store.Filter{"_id": id}, &tenant); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to load tenant %s: %w", id, err)
	}
	return &tenant, nil
}

// GetByRoutingKey returns a tenant by routing key, consulting the shared
// cache first. Cache failures degrade to catalog reads.
func (t *Tenants) GetByRoutingKey(ctx context.Context, routingKey string) (*model.Tenant, error) {
	if data, err := t.cache.Get(ctx, tenantCacheKey(routingKey)); err == nil {
		var tenant model.Tenant
		if err := bson.Unmarshal(data, &tenant); err == nil {
			return &tenant, nil
		}
		// Corrupt entry: drop it and fall through to the catalog.
		_ = t.cache.Delete(ctx, tenantCacheKey(routingKey))
	}

	var tenant model.Tenant
	if err := t.coll.FindOne(ctx, store.Filter{"routing_key": routingKey}, &tenant); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to load tenant by routing key: %w", err)
	}

	if data, err := bson.Marshal(&tenant); err == nil {
		if err := t.cache.Set(ctx, tenantCacheKey(routingKey), data, tenantCacheTTL); err != nil &&
			!errors.Is(err, cache.ErrCacheDisabled) {
			t.logger.Warn("failed to cache tenant record",
				observability.String("routingKey", routingKey),
				observability.Error(err))
		}
	}

	return &tenant, nil
}

// List returns tenants, paginated and ordered by creation time.
func (t *Tenants) List(ctx context.Context, skip, limit int64) ([]model.Tenant, error) {
	var tenants []model.Tenant
	err := t.coll.Find(ctx, store.Filter{}, &tenants, &store.FindOptions{
		Skip:      skip,
		Limit:     limit,
		SortField: "created_at",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// UpdateStatus transitions a tenant to a new status, enforcing the lifecycle
// rules, and invalidates the cache entry.
func (t *Tenants) UpdateStatus(ctx context.Context, id string, status model.TenantStatus) (*model.Tenant, error) {
	tenant, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !tenant.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tenant.Status, status)
	}

	matched, err := t.coll.UpdateOne(ctx,
		store.Filter{"_id": id, "status": tenant.Status},
		store.Update{"status": status, "updated_at": time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to update tenant status: %w", err)
	}
	if !matched {
		// Lost a race with a concurrent transition.
		return nil, fmt.Errorf("%w: concurrent update on tenant %s", ErrInvalidTransition, id)
	}

	t.invalidate(ctx, tenant.RoutingKey)

	t.logger.Info("tenant status changed",
		observability.String("tenantID", id),
		observability.String("from", tenant.Status.String()),
		observability.String("to", status.String()))

	tenant.Status = status
	return tenant, nil
}

// UpdateName renames a tenant. The routing key is immutable once the tenant
// has been activated.
func (t *Tenants) UpdateName(ctx context.Context, id, name string) (*model.Tenant, error) {
	tenant, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	matched, err := t.coll.UpdateOne(ctx,
		store.Filter{"_id": id},
		store.Update{"name": name, "updated_at": time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to rename tenant: %w", err)
	}
	if !matched {
		return nil, ErrTenantNotFound
	}

	t.invalidate(ctx, tenant.RoutingKey)
	tenant.Name = name
	return tenant, nil
}

// Remove deletes a tenant record outright. Used only to roll back a failed
// provisioning attempt; visible deletion goes through UpdateStatus(Deleted).
func (t *Tenants) Remove(ctx context.Context, id, routingKey string) error {
	if _, err := t.coll.DeleteOne(ctx, store.Filter{"_id": id}); err != nil {
		return fmt.Errorf("failed to remove tenant %s: %w", id, err)
	}
	t.invalidate(ctx, routingKey)
	return nil
}

func (t *Tenants) invalidate(ctx context.Context, routingKey string) {
	if err := t.cache.Delete(ctx, tenantCacheKey(routingKey)); err != nil &&
		!errors.Is(err, cache.ErrCacheDisabled) {
		t.logger.Warn("failed to invalidate tenant cache",
			observability.String("routingKey", routingKey),
			observability.Error(err))
	}
}
