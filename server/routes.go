package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"wp-fleet-manager/controllers"
	"wp-fleet-manager/metrics"
	"wp-fleet-manager/utils"
)

// NewRouter builds the gin engine with recovery, access logging, and CORS
// for the dashboard origins.
func NewRouter(h *controllers.Handler, origins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), accessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	SetupRoutes(router, h)
	return router
}

func SetupRoutes(router *gin.Engine, h *controllers.Handler) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Public routes
	router.POST("/api/login", h.Login)
	router.POST("/api/logout", h.Logout)

	auth := router.Group("/api")
	auth.Use(h.AuthMiddleware())
	{
		auth.GET("/clients", h.ListClients)
		auth.POST("/clients", h.CreateClient)
		auth.DELETE("/clients/:id", h.DeleteClient)

		auth.GET("/websites", h.ListWebsites)
		auth.POST("/websites", h.CreateWebsite)
		auth.POST("/websites/sync", h.SyncAll)
		auth.GET("/websites/:id", h.GetWebsite)
		auth.DELETE("/websites/:id", h.DeleteWebsite)
		auth.POST("/websites/:id/sync", h.SyncWebsite)
		auth.GET("/websites/:id/scans", h.ListScans)

		auth.GET("/websites/:id/status", h.GetStatus)
		auth.GET("/websites/:id/updates", h.GetUpdates)
		auth.GET("/websites/:id/plugins", h.GetPlugins)
		auth.GET("/websites/:id/themes", h.GetThemes)
		auth.GET("/websites/:id/users", h.GetUsers)
		auth.POST("/websites/:id/validate", h.ValidateKey)

		auth.POST("/websites/:id/updates", h.RunUpdates)
		auth.GET("/websites/:id/update-logs", h.ListUpdateLogs)

		auth.GET("/websites/:id/maintenance", h.GetMaintenance)
		auth.POST("/websites/:id/maintenance", h.SetMaintenance)
		auth.POST("/websites/:id/provision", h.Provision)

		auth.GET("/activities", h.GetActivities)
	}
}

// accessLog writes one structured line per request.
func accessLog() gin.HandlerFunc {
	log := utils.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			log.Errorw("request", fields...)
		case status >= 400:
			log.Warnw("request", fields...)
		default:
			log.Debugw("request", fields...)
		}
	}
}
