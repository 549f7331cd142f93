package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Cookie values never leave the server; listings mask them.
const maskedValue = "********"

func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.settings.AllSettings()
	if err != nil {
		slog.Error("Database error", "operation", "all_settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make(map[string]string, len(settings))
	for key, value := range settings {
		if strings.HasSuffix(key, "_cookie") && value != "" {
			out[key] = maskedValue
			continue
		}
		out[key] = value
	}
	out["cron_schedule"] = h.scheduler.Schedule()

	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// UpdateSettings persists the submitted keys. Two keys take effect
// immediately: data_dir reopens storage at the new root, cron_schedule
// replaces the collection schedule.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if schedule, ok := req["cron_schedule"]; ok {
		if err := h.scheduler.Reschedule(schedule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cron schedule", "details": err.Error()})
			return
		}
	}

	if dataDir, ok := req["data_dir"]; ok && dataDir != "" && dataDir != h.db.DataDir() {
		if err := h.db.Reopen(dataDir); err != nil {
			slog.Error("Failed to switch data directory", "data_dir", dataDir, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to switch data directory", "details": err.Error()})
			return
		}
		slog.Info("Data directory switched", "data_dir", dataDir)
	}

	for key, value := range req {
		if value == maskedValue {
			continue
		}
		if err := h.settings.SetSetting(key, value); err != nil {
			slog.Error("Database error", "operation", "set_setting", "key", key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
