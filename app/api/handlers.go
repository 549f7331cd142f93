package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ryanxin/collector/app/collect"
	"github.com/ryanxin/collector/app/database"
)

func NewHandler(db *database.DB, service CollectServiceInterface, sched SchedulerInterface, version string) *Handler {
	return &Handler{
		db:        db,
		sources:   database.NewSourceRepository(db),
		contents:  database.NewContentRepository(db),
		tasks:     database.NewTaskRepository(db),
		settings:  database.NewSettingRepository(db),
		service:   service,
		scheduler: sched,
		version:   version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if count, err := h.contents.CountContents(); err == nil {
		health["contents"] = count
	}
	if sources, err := h.sources.ListSources(false); err == nil {
		health["sources"] = len(sources)
	}

	c.JSON(http.StatusOK, health)
}

// Collect triggers a run: all active sources, or a single source when the
// request names one.
func (h *Handler) Collect(c *gin.Context) {
	var req CollectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	var result *collect.Result
	var err error
	if req.SourceID != nil {
		result, err = h.service.CollectOne(c.Request.Context(), *req.SourceID)
	} else {
		result, err = h.service.CollectAll(c.Request.Context())
	}

	if err != nil {
		if errors.Is(err, collect.ErrSourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return
		}
		slog.Error("Collection run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Collection failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListTasks(c *gin.Context) {
	var sourceID *int64
	if raw := c.Query("source_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source_id parameter"})
			return
		}
		sourceID = &id
	}

	tasks, err := h.tasks.ListTasks(sourceID)
	if err != nil {
		slog.Error("Database error", "operation", "list_tasks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]gin.H, 0, len(tasks))
	for i := range tasks {
		out = append(out, taskJSON(&tasks[i]))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out, "total": len(out)})
}

func (h *Handler) GetStats(c *gin.Context) {
	total, err := h.contents.CountContents()
	if err != nil {
		slog.Error("Database error", "operation", "count_contents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := h.contents.CountContentsSince(midnight)
	if err != nil {
		slog.Error("Database error", "operation", "count_since", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	byPlatform, err := h.contents.CountByPlatform()
	if err != nil {
		slog.Error("Database error", "operation", "count_by_platform", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	recent, _, err := h.contents.ListContents(database.ContentFilters{Limit: 5})
	if err != nil {
		slog.Error("Database error", "operation", "list_recent", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	recentOut := make([]gin.H, 0, len(recent))
	for i := range recent {
		recentOut = append(recentOut, contentJSON(&recent[i]))
	}

	sources, err := h.sources.ListSources(false)
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	activeSources := 0
	for i := range sources {
		if sources[i].IsActive {
			activeSources++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total":          total,
		"today":          today,
		"by_platform":    byPlatform,
		"recent":         recentOut,
		"sources":        len(sources),
		"active_sources": activeSources,
	})
}

func (h *Handler) MigrateStorage(c *gin.Context) {
	result, err := h.service.MigrateStorage()
	if err != nil {
		slog.Error("Storage migration failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Migration failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id parameter"})
		return 0, false
	}
	return id, true
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func taskJSON(t *database.Task) gin.H {
	return gin.H{
		"id":           t.ID,
		"source_id":    t.SourceID,
		"status":       t.Status,
		"items_found":  t.ItemsFound,
		"items_new":    t.ItemsNew,
		"error":        t.Error,
		"started_at":   formatTimePtr(t.StartedAt),
		"completed_at": formatTimePtr(t.CompletedAt),
		"created_at":   t.CreatedAt.UTC().Format(time.RFC3339),
	}
}
