package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"thinkshare/internal/models"
	"thinkshare/internal/repositories"
	"thinkshare/internal/telemetry"
)

// ConversationHandler serves conversation list, creation and read markers.
type ConversationHandler struct {
	convRepo    repositories.ConversationRepository
	accountRepo repositories.AccountRepository
	emitter     *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(convRepo repositories.ConversationRepository, accountRepo repositories.AccountRepository, emitter *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{convRepo: convRepo, accountRepo: accountRepo, emitter: emitter}
}

// ListConversations returns the caller's conversations with unread counts.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	convs, err := h.convRepo.ListForAccount(c.Request.Context(), accountID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// CreateConversation starts a direct chat or a thinktank.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req models.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	userID := accountID(c)

	var (
		conv models.Conversation
		err  error
	)
	switch req.Type {
	case models.ConversationDirect, "":
		if req.ParticipantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required"})
			return
		}
		if _, err := h.accountRepo.GetAccount(ctx, req.ParticipantID); err != nil {
			c.JSON(statusFor(err), gin.H{"error": "participant not found"})
			return
		}
		conv, err = h.convRepo.CreateOrGetDirect(ctx, userID, req.ParticipantID)
	case models.ConversationGroup:
		name := strings.TrimSpace(req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		if err := h.checkMembers(ctx, req.MemberIDs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		conv, err = h.convRepo.CreateGroup(ctx, userID, name, req.MemberIDs)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown conversation type"})
		return
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "could not create conversation"})
		return
	}

	audit(c, h.emitter, telemetry.ActionConversationCreated, conv.ID, "")
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

func (h *ConversationHandler) checkMembers(ctx context.Context, ids []string) error {
	unique := map[string]struct{}{}
	for _, id := range ids {
		if id != "" {
			unique[id] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return nil
	}
	wanted := make([]string, 0, len(unique))
	for id := range unique {
		wanted = append(wanted, id)
	}
	accounts, err := h.accountRepo.BulkAccounts(ctx, wanted)
	if err != nil {
		return fmt.Errorf("failed to load members")
	}
	if len(accounts) != len(unique) {
		return fmt.Errorf("unknown member")
	}
	return nil
}

// MarkRead moves the caller's read marker for the conversation to now.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID := c.Param("id")
	if !requireParticipant(c, h.convRepo, conversationID) {
		return
	}
	if err := h.convRepo.MarkRead(c.Request.Context(), conversationID, accountID(c)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "could not mark read"})
		return
	}
	c.Status(http.StatusNoContent)
}
