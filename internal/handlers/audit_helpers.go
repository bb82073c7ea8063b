package handlers

import (
	"github.com/gin-gonic/gin"

	"thinkshare/internal/observability"
	"thinkshare/internal/telemetry"
)

const requestIDContextKey = "request_id"

// audit records a mutation by the authenticated caller.
func audit(c *gin.Context, emitter *telemetry.AuditEmitter, action telemetry.Action, conversationID, messageID string) {
	ctx := c.Request.Context()
	emitter.Record(ctx, telemetry.Record{
		Action:         action,
		ActorID:        accountID(c),
		ConversationID: conversationID,
		MessageID:      messageID,
		RequestID:      requestID(c),
		TraceID:        observability.TraceIDFromContext(ctx),
	})
}

func requestID(c *gin.Context) string {
	if id := c.GetString(requestIDContextKey); id != "" {
		return id
	}
	id := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, id)
	return id
}
