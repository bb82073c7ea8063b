// Package handlers implements the messaging REST API.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"thinkshare/internal/middleware"
	"thinkshare/internal/models"
	"thinkshare/internal/repositories"
)

// MaxMessageLength bounds message content in runes.
const MaxMessageLength = 4000

const maxReactionLength = 16

// Broadcaster pushes invalidation events to a conversation room.
type Broadcaster interface {
	Broadcast(conversationID string, event models.Event)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, models.Event) {}

func orNoop(b Broadcaster) Broadcaster {
	if b == nil {
		return noopBroadcaster{}
	}
	return b
}

func accountID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

func validContent(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return "", false
	}
	return trimmed, true
}

// requireParticipant writes 403/500 and returns false when the caller may not access the conversation.
func requireParticipant(c *gin.Context, convRepo repositories.ConversationRepository, conversationID string) bool {
	member, err := convRepo.IsParticipant(c.Request.Context(), conversationID, accountID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrInvalidReply),
		errors.Is(err, repositories.ErrSelfConversation):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrNotParticipant):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
