package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"thinkshare/internal/middleware"
	"thinkshare/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated requests onto the hub.
type Handler struct {
	hub *Hub
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// Handle upgrades the connection and starts its pumps. Expects AuthMiddleware to have run.
func (h *Handler) Handle(c *gin.Context) {
	accountID := c.GetString(middleware.UserIDKey)
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	ctx, span := otel.Tracer("thinkshare/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.ClientMetaFromGin(c)
	info := ConnInfo{
		ConnID:        newConnID(),
		AccountID:     accountID,
		DeviceID:      meta.DeviceID,
		ClientVersion: meta.ClientVersion,
		IP:            meta.IP,
		RequestID:     meta.RequestID,
		TraceID:       observability.TraceIDFromContext(ctx),
		ConnectedAt:   time.Now(),
	}
	client := NewClient(h.hub, conn, info)
	h.hub.Register(client)

	observability.IncWSActive()
	publish(ctx, info, "ws_connect", "")

	go client.WritePump()
	go func() {
		reason := client.ReadPump(context.Background())
		observability.DecWSActive()
		publish(context.Background(), info, "ws_disconnect", reason)
	}()
}
