package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ryanxin/collector/app/database"
	"github.com/ryanxin/collector/app/filestore"
)

const defaultPageSize = 50

func (h *Handler) ListContents(c *gin.Context) {
	filters := database.ContentFilters{
		SourceType: c.Query("source_type"),
		Author:     c.Query("author"),
		Search:     c.Query("search"),
		FromDate:   c.Query("from"),
		ToDate:     c.Query("to"),
		SortBy:     c.Query("sort_by"),
		Limit:      defaultPageSize,
	}

	if raw := c.Query("source_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source_id parameter"})
			return
		}
		filters.SourceID = &id
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filters.Limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	contents, total, err := h.contents.ListContents(filters)
	if err != nil {
		slog.Error("Database error", "operation", "list_contents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]gin.H, 0, len(contents))
	for i := range contents {
		out = append(out, contentJSON(&contents[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"contents": out,
		"total":    total,
		"limit":    filters.Limit,
		"offset":   filters.Offset,
	})
}

// GetContent returns the database record together with the parsed markdown
// artifact. A missing file yields an empty body rather than an error.
func (h *Handler) GetContent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	content, err := h.contents.GetContentByID(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_content", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if content == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content not found"})
		return
	}

	store := filestore.NewStore(h.db.DataDir())
	text, err := store.Read(content.FilePath)
	if err != nil {
		slog.Error("Failed to read artifact", "id", id, "path", content.FilePath, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read content file"})
		return
	}

	response := contentJSON(content)
	doc, err := filestore.ParseDocument(text)
	if err != nil {
		slog.Warn("Failed to parse artifact frontmatter", "id", id, "error", err)
		response["body"] = text
	} else {
		response["body"] = doc.Body
		response["meta"] = doc.Meta
	}

	c.JSON(http.StatusOK, response)
}

// DeleteContent removes both the markdown artifact and the database row.
func (h *Handler) DeleteContent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	content, err := h.contents.GetContentByID(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_content", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if content == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content not found"})
		return
	}

	store := filestore.NewStore(h.db.DataDir())
	if err := store.Delete(content.FilePath); err != nil {
		slog.Error("Failed to delete artifact", "id", id, "path", content.FilePath, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete content file"})
		return
	}

	if _, err := h.contents.DeleteContent(id); err != nil {
		slog.Error("Database error", "operation", "delete_content", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) ListAuthors(c *gin.Context) {
	authors, err := h.contents.ListAuthors(c.Query("source_type"))
	if err != nil {
		slog.Error("Database error", "operation", "list_authors", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authors": authors, "total": len(authors)})
}

func contentJSON(content *database.Content) gin.H {
	return gin.H{
		"id":           content.ID,
		"source_id":    content.SourceID,
		"source_type":  content.SourceType,
		"source_name":  content.SourceName,
		"external_id":  content.ExternalID,
		"title":        content.Title,
		"author":       content.Author,
		"url":          content.URL,
		"tags":         content.Tags,
		"file_path":    content.FilePath,
		"published_at": formatTimePtr(content.PublishedAt),
		"collected_at": content.CollectedAt.UTC().Format(time.RFC3339),
	}
}
