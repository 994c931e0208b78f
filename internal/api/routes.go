package api

import (
	"github.com/emberhost/ember/internal/api/handlers"
	"github.com/gin-gonic/gin"
)

// Configures all API routes
func (s *Server) setupRoutes(router *gin.Engine) {
	// Unauthenticated platform endpoints
	router.GET("/health", handlers.HandleHealth(version, startTime))
	router.GET("/metrics", handlers.HandleMetrics())
	router.GET("/versions", handlers.HandleVersions(s.versionCache))

	createLimiter := newCreateLimiter()
	powerLimiter := newPowerLimiter()

	// User-facing hosting surface
	v1 := router.Group("/api/v1")
	v1.Use(s.authMiddleware())
	{
		servers := v1.Group("/servers")
		{
			servers.POST("", s.rateLimitMiddleware(createLimiter),
				handlers.HandleCreateServer(s.manager))
			servers.GET("", handlers.HandleListServers(s.manager))
			servers.GET("/port-check", handlers.HandlePortCheck(s.manager))
			servers.GET("/:id", handlers.HandleGetServer(s.manager))
			servers.DELETE("/:id", handlers.HandleDeleteServer(s.manager))
			powerGate := s.rateLimitMiddleware(powerLimiter)
			servers.POST("/:id/start", powerGate, handlers.HandlePowerAction(s.manager, "start"))
			servers.POST("/:id/stop", powerGate, handlers.HandlePowerAction(s.manager, "stop"))
			servers.POST("/:id/restart", powerGate, handlers.HandlePowerAction(s.manager, "restart"))
			servers.POST("/:id/resize", handlers.HandleResizeServer(s.manager))
			servers.GET("/:id/metrics", handlers.HandleServerMetrics(s.manager))
			servers.GET("/:id/properties", handlers.HandleGetProperties(s.manager))
			servers.PUT("/:id/properties", handlers.HandlePutProperties(s.manager))
		}

		v1.GET("/plans", handlers.HandleListPlans(s.store))
	}

	// Console sessions authenticate in-band with a first-frame credential
	// because browser WebSocket clients cannot set request headers, so the
	// route bypasses the header-based identity middleware.
	router.GET("/api/v1/servers/:id/console", handlers.HandleConsole(s.manager, s.verifier))

	// Node-facing watchdog sync channel. Authenticated per-request by
	// the node agent token in the Authorization header, not by the
	// user identity layer.
	router.POST("/internal/servers/:id/status", handlers.HandleStatusSync(s.manager))

	// Administrative fleet surface
	admin := router.Group("/internal")
	admin.Use(s.adminMiddleware())
	{
		admin.POST("/nodes", handlers.HandleCreateNode(s.store))
		admin.GET("/nodes", handlers.HandleListNodes(s.store))
		admin.POST("/plans", handlers.HandleCreatePlan(s.store))
		admin.POST("/servers/:id/suspend", handlers.HandleSuspendServer(s.manager))
	}
}
