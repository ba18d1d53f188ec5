package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avtenantd/internal/guard"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/store"
)

const documentsCollection = "documents"

type documentRequest struct {
	Data map[string]interface{} `json:"data" binding:"required"`
}

// tenantDocuments returns the documents collection of the caller's resolved
// tenant store. Handlers never open a store themselves; the handle comes from
// the guard, which is the only path to one.
func (s *Server) tenantDocuments(c *gin.Context) (store.Collection, *guard.Identity, bool) {
	identity, ok := guard.IdentityFrom(c)
	if !ok || identity.Store == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant scope required"})
		return nil, nil, false
	}
	return identity.Store.Collection(documentsCollection), identity, true
}

func (s *Server) handleCreateDocument(c *gin.Context) {
	coll, identity, ok := s.tenantDocuments(c)
	if !ok {
		return
	}

	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	now := time.Now().UTC()
	doc := &model.Document{
		ID:        uuid.NewString(),
		Data:      req.Data,
		CreatedBy: identity.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := coll.InsertOne(c.Request.Context(), doc); err != nil {
		s.logger.Error("document create failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tenant store unavailable"})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	coll, _, ok := s.tenantDocuments(c)
	if !ok {
		return
	}

	skip, limit := paginationParams(c)

	var docs []model.Document
	err := coll.Find(c.Request.Context(), store.Filter{}, &docs, &store.FindOptions{
		Skip:      skip,
		Limit:     limit,
		SortField: "created_at",
	})
	if err != nil {
		s.logger.Error("document list failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tenant store unavailable"})
		return
	}

	if docs == nil {
		docs = []model.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "skip": skip, "limit": limit})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	coll, _, ok := s.tenantDocuments(c)
	if !ok {
		return
	}

	var doc model.Document
	err := coll.FindOne(c.Request.Context(), store.Filter{"_id": c.Param("id")}, &doc)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		s.logger.Error("document read failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tenant store unavailable"})
		return
	}

	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(c *gin.Context) {
	coll, _, ok := s.tenantDocuments(c)
	if !ok {
		return
	}

	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	matched, err := coll.UpdateOne(ctx,
		store.Filter{"_id": c.Param("id")},
		store.Update{"data": req.Data, "updated_at": time.Now().UTC()})
	if err != nil {
		s.logger.Error("document update failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tenant store unavailable"})
		return
	}
	if !matched {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	var doc model.Document
	if err := coll.FindOne(ctx, store.Filter{"_id": c.Param("id")}, &doc); err != nil {
		s.logger.Error("document read-back failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tenant store unavailable"})
		return
	}

	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	coll, _, ok := s.tenantDocuments(c)
	if !ok {
		return
	}

	deleted, err := coll.DeleteOne(c.Request.Context(), store.Filter{"_id": c.Param("id")})
	if err != nil {
		s.logger.Error("document delete failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tenant store unavailable"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	c.Status(http.StatusNoContent)
}
