package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/adpulse-ops/adpulse-backend-go/internal/api/handlers"
	"github.com/adpulse-ops/adpulse-backend-go/internal/api/middleware"
	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
	"github.com/adpulse-ops/adpulse-backend-go/internal/websocket"
)

// NewRouter builds the HTTP router with middleware and all routes
func NewRouter(cfg *config.Config, h *handlers.Handlers, hub *websocket.Hub, log *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics())
	router.Use(middleware.NewRateLimiter(50, 100).Middleware())

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", websocket.HandleWebSocketGin(hub))

	monitoring := router.Group("/monitoring")
	{
		monitoring.POST("/start/:customerId", h.StartMonitoring)
		monitoring.POST("/stop", h.StopAllMonitoring)
		monitoring.POST("/stop/:customerId", h.StopMonitoring)
		monitoring.GET("/status/:customerId", h.GetStatus)
		monitoring.GET("/issues/:customerId", h.GetIssues)
		monitoring.GET("/dashboard/:customerId", h.GetDashboard)
		monitoring.POST("/issues/:issueId/resolve", h.ResolveIssue)
		monitoring.POST("/issues/:issueId/ignore", h.IgnoreIssue)
		monitoring.GET("/rules", h.GetRules)
		monitoring.POST("/rules/:ruleId/toggle", h.ToggleRule)
		monitoring.POST("/test-alert", h.TestAlert)
	}

	return router
}
