package api

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
		log.Printf("API endpoints enabled with authentication")
	} else {
		log.Printf("API endpoints enabled without authentication (API_ACCESS_KEY not set)")
	}
	{
		api.GET("/sources", handler.ListSources)
		api.POST("/sources", handler.CreateSource)
		api.GET("/sources/:id", handler.GetSource)
		api.PUT("/sources/:id", handler.UpdateSource)
		api.DELETE("/sources/:id", handler.DeleteSource)

		api.POST("/collect", handler.Collect)

		api.GET("/contents", handler.ListContents)
		api.GET("/contents/:id", handler.GetContent)
		api.DELETE("/contents/:id", handler.DeleteContent)
		api.GET("/authors", handler.ListAuthors)

		api.GET("/tasks", handler.ListTasks)

		api.GET("/stats", handler.GetStats)

		api.GET("/settings", handler.GetSettings)
		api.PUT("/settings", handler.UpdateSettings)

		api.POST("/migrate", handler.MigrateStorage)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "collector",
			"version":     handler.version,
			"description": "Personal content aggregation service",
			"endpoints": map[string]string{
				"health":   "/health",
				"sources":  "/api/sources",
				"collect":  "/api/collect (POST)",
				"contents": "/api/contents",
				"tasks":    "/api/tasks",
				"stats":    "/api/stats",
				"settings": "/api/settings",
				"migrate":  "/api/migrate (POST)",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
