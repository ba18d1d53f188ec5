package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/guard"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/password"
)

type createUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

// handleListUsers lists the users of the caller's tenant. A superadmin must
// select a tenant via the X-Tenant-Key header to use this endpoint.
func (s *Server) handleListUsers(c *gin.Context) {
	identity, ok := guard.IdentityFrom(c)
	if !ok || identity.TenantKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant scope required"})
		return
	}

	skip, limit := paginationParams(c)

	users, err := s.users.ListByTenant(c.Request.Context(), identity.TenantKey, skip, limit)
	if err != nil {
		s.logger.Error("user list failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "skip": skip, "limit": limit})
}

// handleCreateUser creates a member or tenant admin inside the caller's
// tenant. Superadmins are only created through registration.
func (s *Server) handleCreateUser(c *gin.Context) {
	identity, ok := guard.IdentityFrom(c)
	if !ok || identity.TenantKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant scope required"})
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	role, err := model.ParseRole(req.Role)
	if err != nil || role == model.RoleSuperadmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be member or tenant_admin"})
		return
	}

	digest, err := password.Hash(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process credentials"})
		return
	}

	user, err := s.users.Create(c.Request.Context(), req.Email, digest, role, identity.TenantKey)
	if err != nil {
		if errors.Is(err, catalog.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		s.logger.Error("user create failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

// tenantUser loads a user by id and confirms it belongs to the caller's
// tenant. Records outside the caller's scope read as absent.
func (s *Server) tenantUser(c *gin.Context, tenantKey string) (*model.User, bool) {
	user, err := s.users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return nil, false
		}
		s.logger.Error("user lookup failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return nil, false
	}
	if user.TenantKey != tenantKey {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	return user, true
}

// handleChangePassword replaces a tenant user's password. The current
// password must be presented and the new one must differ.
func (s *Server) handleChangePassword(c *gin.Context) {
	identity, ok := guard.IdentityFrom(c)
	if !ok || identity.TenantKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant scope required"})
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, ok := s.tenantUser(c, identity.TenantKey)
	if !ok {
		return
	}

	if !password.Verify(req.CurrentPassword, user.PasswordDigest) {
		c.JSON(http.StatusForbidden, gin.H{"error": "current password incorrect"})
		return
	}
	if req.NewPassword == req.CurrentPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "new password must differ from the current one"})
		return
	}

	digest, err := password.Hash(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process credentials"})
		return
	}

	if err := s.users.UpdatePassword(c.Request.Context(), user.ID, digest); err != nil {
		s.logger.Error("password update failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "password changed"})
}

// handleDeactivateUser soft-deletes a tenant user. Records are never
// physically removed.
func (s *Server) handleDeactivateUser(c *gin.Context) {
	identity, ok := guard.IdentityFrom(c)
	if !ok || identity.TenantKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant scope required"})
		return
	}

	user, ok := s.tenantUser(c, identity.TenantKey)
	if !ok {
		return
	}

	if err := s.users.Deactivate(c.Request.Context(), user.ID); err != nil {
		if errors.Is(err, catalog.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		s.logger.Error("user deactivate failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	c.Status(http.StatusNoContent)
}
