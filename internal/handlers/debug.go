package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"thinkshare/internal/telemetry"
)

// HubInspector exposes read-only push hub counters.
type HubInspector interface {
	RoomSize(conversationID string) int
	Online(accountID string) bool
}

// RegisterDebugRoutes wires operator endpoints behind the DEBUG_ROUTES flag.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, hub HubInspector, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		audit(c, emitter, telemetry.ActionProbe, "", "")
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestID(c)})
	})

	if hub == nil {
		return
	}
	router.GET("/debug/rooms/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"conversation_id": c.Param("id"), "subscribers": hub.RoomSize(c.Param("id"))})
	})
	router.GET("/debug/presence/:account", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"account_id": c.Param("account"), "online": hub.Online(c.Param("account"))})
	})
}
