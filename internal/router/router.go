package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/config"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/handlers"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	AdminAuth *handlers.AdminAuthHandler
	Mappings  *handlers.MappingsHandler
	Sync      *handlers.SyncHandler
	Settings  *handlers.SettingsHandler
}

// corsMiddleware applies the CORS policy. Environment variable takes
// priority over YAML config; the default allows all origins.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var allowedOrigins []string
		allowCredentials := true
		maxAge := 3600

		if envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); envOrigins != "" {
			for _, o := range strings.Split(envOrigins, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		} else {
			allowedOrigins = []string{"*"}
		}

		origin := c.GetHeader("Origin")
		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SetupRouter mounts the public endpoints and the admin surface. The
// admin group sits behind the IP whitelist; everything under it except
// login also requires a valid admin JWT.
func SetupRouter(h Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())

	if logger == nil {
		logger = logrus.New()
	}

	var allowedIPs []string
	if config.AppConfig != nil && len(config.AppConfig.Admin.AllowedIPs) > 0 {
		allowedIPs = config.AppConfig.Admin.AllowedIPs
		logger.WithFields(logrus.Fields{
			"allowed_ips": allowedIPs,
			"count":       len(allowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin allowed IPs configured, using localhost-only mode")
	}

	localhostOnly := middleware.NewLocalhostOnly(logger, allowedIPs)
	adminAuth := middleware.NewAdminAuthMiddleware(logger)

	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", handlers.HealthCheckHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.Group("/admin", localhostOnly.Restrict())
	{
		admin.POST("/login", h.AdminAuth.AdminLoginHandler)
		admin.GET("/totp/setup", h.AdminAuth.TOTPSetupHandler)

		authed := admin.Group("", adminAuth.RequireAdminAuth())
		{
			// Mapping forms: the response is always a redirect.
			authed.POST("/fieldmaps/submit", h.Mappings.SubmitFieldmapForm)
			authed.POST("/object-maps/submit", h.Mappings.SubmitObjectMapForm)

			authed.GET("/fieldmaps", h.Mappings.ListFieldmaps)
			authed.GET("/fieldmaps/:id", h.Mappings.GetFieldmap)
			authed.GET("/object-maps", h.Mappings.ListObjectMaps)
			authed.GET("/object-maps/:id", h.Mappings.GetObjectMap)
			authed.GET("/transients/:token", h.Mappings.RecoverTransient)

			authed.POST("/sync/push", h.Sync.TriggerPush)
			authed.POST("/sync/pull", h.Sync.TriggerPull)
			authed.GET("/sync/events", h.Sync.ListEvents)
			authed.GET("/sync/events/stats", h.Sync.EventStats)
			authed.GET("/sync/feed", h.Sync.ActivityFeed)

			authed.GET("/settings", h.Settings.ListSettings)
			authed.GET("/settings/:key", h.Settings.GetSetting)
			authed.PUT("/settings/:key", h.Settings.UpdateSetting)
			authed.GET("/salesforce/status", h.Settings.SalesforceStatus)
			authed.GET("/salesforce/describe/:object", h.Settings.DescribeSalesforceObject)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message": "Endpoint not found",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}
