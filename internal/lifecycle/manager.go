// Package lifecycle implements the tenant lifecycle manager: orchestrated
// tenant creation with rollback on partial failure, deletion with the catalog
// as source of truth, and catalog updates.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/password"
	"github.com/vyrodovalexey/avtenantd/internal/router"
	"github.com/vyrodovalexey/avtenantd/internal/store"
)

// Lifecycle errors.
var (
	// ErrProvisioningFailed indicates that tenant creation failed partway
	// and was rolled back.
	ErrProvisioningFailed = errors.New("tenant provisioning failed")

	// ErrInvalidSpec indicates an invalid tenant creation request.
	ErrInvalidSpec = errors.New("invalid tenant spec")
)

// CreateSpec describes a tenant to create.
type CreateSpec struct {
	Name          string `json:"name"`
	RoutingKey    string `json:"routingKey"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

// UpdateSpec describes a tenant mutation. Nil fields are left unchanged.
type UpdateSpec struct {
	Name       *string             `json:"name"`
	Status     *model.TenantStatus `json:"status"`
	RoutingKey *string             `json:"routingKey"`
}

// Manager orchestrates tenant lifecycle operations. Only superadmin-guarded
// handlers reach it.
type Manager struct {
	tenants *catalog.Tenants
	users   *catalog.Users
	driver  store.Driver
	router  *router.Router
	logger  observability.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(tenants *catalog.Tenants, users *catalog.Users, driver store.Driver, r *router.Router, logger observability.Logger) *Manager {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Manager{
		tenants: tenants,
		users:   users,
		driver:  driver,
		router:  r,
		logger:  logger,
	}
}

func (s *CreateSpec) validate() error {
	if err := model.ValidateRoutingKey(s.RoutingKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if !strings.Contains(s.AdminEmail, "@") {
		return fmt.Errorf("%w: admin email is invalid", ErrInvalidSpec)
	}
	if len(s.AdminPassword) < 8 {
		return fmt.Errorf("%w: admin password must be at least 8 characters", ErrInvalidSpec)
	}
	return nil
}

// CreateTenant creates the catalog record, provisions the isolated store,
// creates the initial tenant admin, and activates the tenant. Any failure
// after the record exists rolls the catalog back so no Provisioning orphan
// survives.
func (m *Manager) CreateTenant(ctx context.Context, spec CreateSpec) (*model.Tenant, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	tenant, err := m.tenants.Create(ctx, spec.Name, spec.RoutingKey, model.TenantProvisioning)
	if err != nil {
		return nil, err
	}

	if _, err := m.driver.Provision(ctx, tenant.StoreName); err != nil {
		m.rollback(ctx, tenant, false)
		return nil, fmt.Errorf("%w: store provisioning: %v", ErrProvisioningFailed, err)
	}

	digest, err := password.Hash(spec.AdminPassword)
	if err != nil {
		m.rollback(ctx, tenant, true)
		return nil, fmt.Errorf("%w: admin credential: %v", ErrProvisioningFailed, err)
	}

	admin, err := m.users.Create(ctx, spec.AdminEmail, digest, model.RoleTenantAdmin, tenant.RoutingKey)
	if err != nil {
		m.rollback(ctx, tenant, true)
		if errors.Is(err, catalog.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: admin user: %v", ErrProvisioningFailed, err)
	}

	activated, err := m.tenants.UpdateStatus(ctx, tenant.ID, model.TenantActive)
	if err != nil {
		m.deactivateAdmin(ctx, admin.ID)
		m.rollback(ctx, tenant, true)
		return nil, fmt.Errorf("%w: activation: %v", ErrProvisioningFailed, err)
	}

	m.logger.Info("tenant created",
		observability.String("tenantID", activated.ID),
		observability.String("routingKey", activated.RoutingKey),
		observability.String("adminID", admin.ID))

	return activated, nil
}

// rollback removes a failed tenant record and, when the store was already
// provisioned, tears it down. Runs on a cancellation-proof context: the
// caller disconnecting mid-provisioning must not strand a Provisioning
// record.
func (m *Manager) rollback(ctx context.Context, tenant *model.Tenant, storeProvisioned bool) {
	cleanupCtx := context.WithoutCancel(ctx)

	if err := m.tenants.Remove(cleanupCtx, tenant.ID, tenant.RoutingKey); err != nil {
		m.logger.Error("failed to roll back tenant record",
			observability.String("tenantID", tenant.ID),
			observability.Error(err))
	}

	if storeProvisioned {
		if err := m.driver.Teardown(cleanupCtx, tenant.StoreName); err != nil {
			m.logger.Warn("failed to tear down store during rollback",
				observability.String("store", tenant.StoreName),
				observability.Error(err))
		}
	}

	m.logger.Warn("tenant creation rolled back",
		observability.String("routingKey", tenant.RoutingKey))
}

func (m *Manager) deactivateAdmin(ctx context.Context, adminID string) {
	if err := m.users.Deactivate(context.WithoutCancel(ctx), adminID); err != nil {
		m.logger.Error("failed to deactivate admin during rollback",
			observability.String("userID", adminID),
			observability.Error(err))
	}
}

// DeleteTenant marks a tenant Deleted, evicts it from the routing cache, and
// tears the store down best-effort. The catalog transition is the source of
// truth; teardown failures are logged for out-of-band retry and never block
// the visible deletion.
func (m *Manager) DeleteTenant(ctx context.Context, id string) error {
	tenant, err := m.tenants.UpdateStatus(ctx, id, model.TenantDeleted)
	if err != nil {
		return err
	}

	m.router.Invalidate(tenant.RoutingKey)

	if err := m.driver.Teardown(context.WithoutCancel(ctx), tenant.StoreName); err != nil {
		m.logger.Warn("store teardown deferred",
			observability.String("store", tenant.StoreName),
			observability.Error(err))
	}

	m.logger.Info("tenant deleted",
		observability.String("tenantID", id),
		observability.String("routingKey", tenant.RoutingKey))

	return nil
}

// GetTenant returns a tenant by identifier.
func (m *Manager) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	return m.tenants.GetByID(ctx, id)
}

// ListTenants returns tenants, paginated.
func (m *Manager) ListTenants(ctx context.Context, skip, limit int64) ([]model.Tenant, error) {
	return m.tenants.List(ctx, skip, limit)
}

// UpdateTenant applies a tenant mutation. The routing key is immutable once
// the tenant is past Provisioning; status transitions follow the lifecycle
// rules and evict the routing cache when a tenant leaves Active.
func (m *Manager) UpdateTenant(ctx context.Context, id string, spec UpdateSpec) (*model.Tenant, error) {
	tenant, err := m.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if spec.RoutingKey != nil && *spec.RoutingKey != tenant.RoutingKey {
		return nil, catalog.ErrRoutingKeyImmutable
	}

	if spec.Name != nil && *spec.Name != tenant.Name {
		tenant, err = m.tenants.UpdateName(ctx, id, *spec.Name)
		if err != nil {
			return nil, err
		}
	}

	if spec.Status != nil && *spec.Status != tenant.Status {
		tenant, err = m.tenants.UpdateStatus(ctx, id, *spec.Status)
		if err != nil {
			return nil, err
		}
		if *spec.Status != model.TenantActive {
			m.router.Invalidate(tenant.RoutingKey)
		}
	}

	return tenant, nil
}
