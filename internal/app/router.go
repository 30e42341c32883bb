package app

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"provinator.io/provinator/internal/api/handlers"
	"provinator.io/provinator/internal/api/middleware"
	"provinator.io/provinator/internal/config"
)

// newRouter builds the HTTP surface. Health and the Jira webhook stay
// public; everything else sits behind the authenticator, with the admin
// group additionally requiring the configured admin role. A nil
// authenticator (no JWKS URL) leaves the API open for lab use.
func newRouter(cfg *config.Config, server *handlers.Server, auth *middleware.Authenticator) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Request-ID", "X-Webhook-Secret")
	router.Use(cors.New(corsCfg))

	router.GET("/health/live", server.Healthz)
	router.GET("/health/ready", server.Readyz)
	router.POST("/webhooks/jira", server.JiraWebhook)

	api := router.Group("/api/v1")
	api.Use(auth.Middleware())

	api.GET("/sizes", server.ListSizes)

	api.POST("/requests", server.CreateRequest)
	api.GET("/requests", server.ListRequests)
	api.GET("/requests/:id", server.GetRequest)
	api.POST("/requests/:id/approve", server.ApproveRequest)
	api.POST("/requests/:id/reject", server.RejectRequest)
	api.POST("/requests/:id/retry", server.RetryRequest)

	api.POST("/deployments", server.CreateDeployment)
	api.GET("/deployments", server.ListDeployments)
	api.GET("/deployments/:id", server.GetDeployment)
	api.POST("/deployments/:id/approve", server.ApproveDeployment)
	api.POST("/deployments/:id/reject", server.RejectDeployment)
	api.POST("/deployments/:id/retry", server.RetryDeployment)

	admin := api.Group("/admin")
	admin.Use(auth.RequireRole(cfg.Auth.AdminRole))

	admin.POST("/environments", server.CreateEnvironment)
	admin.GET("/environments", server.ListEnvironments)
	admin.GET("/environments/:id", server.GetEnvironment)
	admin.PUT("/environments/:id", server.UpdateEnvironment)
	admin.DELETE("/environments/:id", server.DeleteEnvironment)
	admin.POST("/environments/:id/test", server.TestEnvironment)

	admin.POST("/templates", server.CreateMapping)
	admin.GET("/templates", server.ListMappings)
	admin.GET("/templates/discover", server.DiscoverTemplates)
	admin.PUT("/templates/:id", server.UpdateMapping)
	admin.DELETE("/templates/:id", server.DeleteMapping)

	admin.GET("/settings", server.ListSettings)
	admin.PUT("/settings/:key", server.UpdateSetting)
	admin.DELETE("/settings/:key", server.DeleteSetting)

	return router
}
