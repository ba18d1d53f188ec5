package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/guard"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/password"
	"github.com/vyrodovalexey/avtenantd/internal/store"
	"github.com/vyrodovalexey/avtenantd/internal/token"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`

	// TenantKey optionally narrows the login to one tenant when the same
	// email exists in several.
	TenantKey string `json:"tenantKey"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TenantKey string `json:"tenantKey,omitempty"`
	Active    bool   `json:"active"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role.String(),
		TenantKey: u.TenantKey,
		Active:    u.Active,
	}
}

func newRequestID() string {
	return uuid.NewString()
}

// handleRegister creates a superadmin. The first superadmin can be created
// without credentials to bootstrap an empty catalog; after that the caller
// must itself be a superadmin.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()

	count, err := s.users.CountSuperadmins(ctx)
	if err != nil {
		s.logger.Error("superadmin count failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	if count > 0 {
		if !s.callerIsSuperadmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": guard.ReasonInsufficientRole})
			return
		}
	}

	digest, err := password.Hash(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process credentials"})
		return
	}

	user, err := s.users.Create(ctx, req.Email, digest, model.RoleSuperadmin, "")
	if err != nil {
		if errors.Is(err, catalog.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		s.logger.Error("superadmin create failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	s.logger.Info("superadmin registered", observability.String("userID", user.ID))
	c.JSON(http.StatusCreated, toUserResponse(user))
}

// callerIsSuperadmin verifies the request carries a valid access token for an
// active superadmin. Registration is the one route that needs this check
// conditionally, so it cannot sit behind the guard middleware.
func (s *Server) callerIsSuperadmin(c *gin.Context) bool {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	claims, err := s.tokens.Verify(c.Request.Context(), header[len(prefix):], token.KindAccess)
	if err != nil {
		return false
	}
	return claims.Role.AtLeast(model.RoleSuperadmin)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()

	// Email uniqueness is tenant-scoped, so the same address can belong to
	// users in several tenants. The password, plus the optional tenant key,
	// selects the matching record.
	candidates, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		s.logger.Error("login lookup failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	// One response for unknown email, wrong password, and inactive user, so
	// the endpoint does not reveal which emails exist.
	user := matchCredentials(candidates, req)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		s.logger.Error("token issue failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue tokens"})
		return
	}

	s.logger.Info("login",
		observability.String("userID", user.ID),
		observability.String("role", user.Role.String()))
	c.JSON(http.StatusOK, pair)
}

// matchCredentials returns the active candidate whose password digest
// matches, honoring the optional tenant key filter.
func matchCredentials(candidates []model.User, req loginRequest) *model.User {
	for i := range candidates {
		u := &candidates[i]
		if req.TenantKey != "" && u.TenantKey != req.TenantKey {
			continue
		}
		if !u.Active {
			continue
		}
		if password.Verify(req.Password, u.PasswordDigest) {
			return u
		}
	}
	return nil
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	pair, err := s.tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": guard.ReasonTokenExpired})
		case errors.Is(err, token.ErrTokenRevoked):
			c.JSON(http.StatusUnauthorized, gin.H{"error": guard.ReasonTokenRevoked})
		case errors.Is(err, token.ErrSubjectInactive):
			c.JSON(http.StatusUnauthorized, gin.H{"error": guard.ReasonSubjectInactive})
		case errors.Is(err, token.ErrWrongTokenKind):
			c.JSON(http.StatusUnauthorized, gin.H{"error": guard.ReasonTokenInvalid})
		case errors.Is(err, store.ErrUnavailable):
			s.logger.Error("refresh lookup failed", observability.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		default:
			c.JSON(http.StatusUnauthorized, gin.H{"error": guard.ReasonTokenInvalid})
		}
		return
	}

	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleMe(c *gin.Context) {
	identity, ok := guard.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": guard.ReasonUnauthenticated})
		return
	}

	user, err := s.users.GetByID(c.Request.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, catalog.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": guard.ReasonSubjectInactive})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}
