package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/store"
)

// Users is the credential store over the master catalog.
type Users struct {
	coll   store.Collection
	logger observability.Logger
}

// NewUsers creates a credential store over the master catalog handle.
func NewUsers(master store.Handle, logger observability.Logger) *Users {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Users{
		coll:   master.Collection(usersCollection),
		logger: logger,
	}
}

func (u *Users) ensureIndexes(ctx context.Context) error {
	if err := u.coll.EnsureIndex(ctx, []string{"tenant_key", "email"}, true); err != nil {
		return fmt.Errorf("failed to index users: %w", err)
	}
	return nil
}

// Create inserts a new user record. The tenant reference is the owning
// tenant's routing key. Email uniqueness is scoped to the tenant; superadmin
// emails (empty tenant reference) are unique globally.
func (u *Users) Create(ctx context.Context, email, passwordDigest string, role model.Role, tenantKey string) (*model.User, error) {
	now := time.Now().UTC()
	user := &model.User{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordDigest: passwordDigest,
		Role:           role,
		TenantKey:      tenantKey,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := u.coll.InsertOne(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	u.logger.Info("user created",
		observability.String("userID", user.ID),
		observability.String("role", role.String()),
		observability.String("tenantKey", tenantKey))

	return user, nil
}

// GetByID returns a user by identifier.
func (u *Users) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := u.coll.FindOne(ctx, store.Filter{"_id": id}, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return &user, nil
}

// GetByEmail returns a user by email address.
func (u *Users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := u.coll.FindOne(ctx, store.Filter{"email": email}, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user by email: %w", err)
	}
	return &user, nil
}

// FindByEmail returns every user holding an email address. Uniqueness is
// scoped to the tenant, so the same address may exist in several tenants and
// callers must select among the matches themselves.
func (u *Users) FindByEmail(ctx context.Context, email string) ([]model.User, error) {
	var users []model.User
	if err := u.coll.Find(ctx, store.Filter{"email": email}, &users, nil); err != nil {
		return nil, fmt.Errorf("failed to find users by email: %w", err)
	}
	return users, nil
}

// ListByTenant returns users scoped to a tenant, paginated.
func (u *Users) ListByTenant(ctx context.Context, tenantKey string, skip, limit int64) ([]model.User, error) {
	var users []model.User
	err := u.coll.Find(ctx, store.Filter{"tenant_key": tenantKey}, &users, &store.FindOptions{
		Skip:      skip,
		Limit:     limit,
		SortField: "created_at",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CountSuperadmins returns the number of superadmin records, active or not.
func (u *Users) CountSuperadmins(ctx context.Context) (int64, error) {
	n, err := u.coll.Count(ctx, store.Filter{"role": model.RoleSuperadmin})
	if err != nil {
		return 0, fmt.Errorf("failed to count superadmins: %w", err)
	}
	return n, nil
}

// Deactivate soft-deletes a user. Records are never physically removed.
func (u *Users) Deactivate(ctx context.Context, id string) error {
	matched, err := u.coll.UpdateOne(ctx,
		store.Filter{"_id": id},
		store.Update{"active": false, "updated_at": time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to deactivate user %s: %w", id, err)
	}
	if !matched {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces a user's password digest.
func (u *Users) UpdatePassword(ctx context.Context, id, passwordDigest string) error {
	matched, err := u.coll.UpdateOne(ctx,
		store.Filter{"_id": id},
		store.Update{"password_digest": passwordDigest, "updated_at": time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to update password for %s: %w", id, err)
	}
	if !matched {
		return ErrUserNotFound
	}
	return nil
}
