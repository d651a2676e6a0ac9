package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adpulse-ops/adpulse-backend-go/pkg/utils"
)

var startTime = time.Now()

// Health returns service health and uptime
func (h *Handlers) Health(c *gin.Context) {
	utils.SendSuccess(c, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(startTime).String(),
		"websocket": h.wsHub.GetStats(),
	})
}
