package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/lifecycle"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
)

// pagination caps. List endpoints never return more than maxPageSize rows.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func paginationParams(c *gin.Context) (skip, limit int64) {
	skip, _ = strconv.ParseInt(c.Query("skip"), 10, 64)
	if skip < 0 {
		skip = 0
	}
	limit, _ = strconv.ParseInt(c.Query("limit"), 10, 64)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return skip, limit
}

func (s *Server) handleCreateTenant(c *gin.Context) {
	var spec lifecycle.CreateSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tenant, err := s.tenants.CreateTenant(c.Request.Context(), spec)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrInvalidSpec):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, catalog.ErrTenantExists):
			c.JSON(http.StatusConflict, gin.H{"error": "routing key already in use"})
		case errors.Is(err, catalog.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "admin email already registered"})
		default:
			s.logger.Error("tenant create failed", observability.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant provisioning failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

func (s *Server) handleListTenants(c *gin.Context) {
	skip, limit := paginationParams(c)

	tenants, err := s.tenants.ListTenants(c.Request.Context(), skip, limit)
	if err != nil {
		s.logger.Error("tenant list failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tenants": tenants, "skip": skip, "limit": limit})
}

func (s *Server) handleGetTenant(c *gin.Context) {
	tenant, err := s.tenants.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}

	c.JSON(http.StatusOK, tenant)
}

func (s *Server) handleUpdateTenant(c *gin.Context) {
	var spec lifecycle.UpdateSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tenant, err := s.tenants.UpdateTenant(c.Request.Context(), c.Param("id"), spec)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrTenantNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		case errors.Is(err, catalog.ErrRoutingKeyImmutable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "routing key cannot be changed"})
		case errors.Is(err, catalog.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid status transition"})
		default:
			s.logger.Error("tenant update failed", observability.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, tenant)
}

func (s *Server) handleDeleteTenant(c *gin.Context) {
	err := s.tenants.DeleteTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrTenantNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		case errors.Is(err, catalog.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "tenant already deleted"})
		default:
			s.logger.Error("tenant delete failed", observability.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
