package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ryanxin/collector/app/database"
)

func (h *Handler) ListSources(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	sources, err := h.sources.ListSources(activeOnly)
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]gin.H, 0, len(sources))
	for i := range sources {
		out = append(out, sourceJSON(&sources[i]))
	}
	c.JSON(http.StatusOK, gin.H{"sources": out, "total": len(out)})
}

func (h *Handler) GetSource(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	source, err := h.sources.GetSource(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	c.JSON(http.StatusOK, sourceJSON(source))
}

func (h *Handler) CreateSource(c *gin.Context) {
	var req CreateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if !database.ValidSourceType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source type", "type": req.Type})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	source, err := h.sources.CreateSource(req.Name, req.Type, req.Config, isActive)
	if err != nil {
		slog.Error("Database error", "operation", "create_source", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusCreated, sourceJSON(source))
}

func (h *Handler) UpdateSource(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req UpdateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if req.Type != nil && !database.ValidSourceType(*req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source type", "type": *req.Type})
		return
	}

	source, err := h.sources.UpdateSource(id, database.SourceUpdate{
		Name:     req.Name,
		Type:     req.Type,
		Config:   req.Config,
		IsActive: req.IsActive,
	})
	if err != nil {
		slog.Error("Database error", "operation", "update_source", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	c.JSON(http.StatusOK, sourceJSON(source))
}

func (h *Handler) DeleteSource(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deleted, err := h.sources.DeleteSource(id)
	if err != nil {
		slog.Error("Database error", "operation", "delete_source", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func sourceJSON(s *database.Source) gin.H {
	return gin.H{
		"id":                s.ID,
		"name":              s.Name,
		"type":              s.Type,
		"config":            s.Config,
		"is_active":         s.IsActive,
		"last_collected_at": formatTimePtr(s.LastCollectedAt),
		"last_error":        s.LastError,
		"created_at":        s.CreatedAt.UTC().Format(time.RFC3339),
	}
}
