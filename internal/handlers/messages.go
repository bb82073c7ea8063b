package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"thinkshare/internal/models"
	"thinkshare/internal/repositories"
	"thinkshare/internal/telemetry"
)

// MessageHandler serves message history and mutations.
type MessageHandler struct {
	convRepo    repositories.ConversationRepository
	messageRepo repositories.MessageRepository
	accountRepo repositories.AccountRepository
	hub         Broadcaster
	emitter     *telemetry.AuditEmitter
	now         func() time.Time
}

// NewMessageHandler builds a MessageHandler. A nil hub disables push notifications.
func NewMessageHandler(convRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, accountRepo repositories.AccountRepository, hub Broadcaster, emitter *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		accountRepo: accountRepo,
		hub:         orNoop(hub),
		emitter:     emitter,
		now:         time.Now,
	}
}

// ListMessages returns the conversation history with senders attached.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID := c.Param("id")
	if !requireParticipant(c, h.convRepo, conversationID) {
		return
	}

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderIDs := make([]string, 0, len(msgs))
	seen := map[string]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	accounts, err := h.accountRepo.BulkAccounts(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}
	byID := make(map[string]models.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	resp := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if a, ok := byID[m.SenderID]; ok {
			m.Sender = &a
		}
		resp = append(resp, m)
	}

	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// SendMessage stores a message and notifies the room.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	conversationID := c.Param("id")
	if !requireParticipant(c, h.convRepo, conversationID) {
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content, ok := validContent(req.Content)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("content must be 1-%d characters", MaxMessageLength)})
		return
	}
	req.Content = content
	req.ConversationID = conversationID

	ctx := c.Request.Context()
	msg, err := h.messageRepo.CreateMessage(ctx, conversationID, accountID(c), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "failed to store message"})
		return
	}
	_ = h.convRepo.Touch(ctx, conversationID, h.now())

	h.hub.Broadcast(conversationID, models.Event{Type: models.EventMessage, ConversationID: conversationID, MessageID: msg.ID})
	audit(c, h.emitter, telemetry.ActionMessageSent, conversationID, msg.ID)
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// loadMessage resolves :id, checks participation and optionally sender ownership.
func (h *MessageHandler) loadMessage(c *gin.Context, mustOwn bool) (models.Message, bool) {
	msg, err := h.messageRepo.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil || msg.DeletedForAll {
		status := http.StatusNotFound
		if err != nil {
			status = statusFor(err)
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return models.Message{}, false
	}
	if !requireParticipant(c, h.convRepo, msg.ConversationID) {
		return models.Message{}, false
	}
	if mustOwn && msg.SenderID != accountID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can change this message"})
		return models.Message{}, false
	}
	return msg, true
}

// EditMessage replaces the content of the caller's own message.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	var req models.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content, ok := validContent(req.Content)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("content must be 1-%d characters", MaxMessageLength)})
		return
	}

	msg, ok := h.loadMessage(c, true)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	updated, err := h.messageRepo.EditMessage(ctx, msg.ID, accountID(c), content)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "could not edit message"})
		return
	}

	h.hub.Broadcast(msg.ConversationID, models.Event{Type: models.EventEdit, ConversationID: msg.ConversationID, MessageID: msg.ID})
	audit(c, h.emitter, telemetry.ActionMessageEdited, msg.ConversationID, msg.ID)
	c.JSON(http.StatusOK, gin.H{"message": updated})
}

// DeleteMessage deletes the caller's own message for everyone.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	msg, ok := h.loadMessage(c, true)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.messageRepo.DeleteForAll(ctx, msg.ID, accountID(c)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "could not delete message"})
		return
	}

	h.hub.Broadcast(msg.ConversationID, models.Event{Type: models.EventDelete, ConversationID: msg.ConversationID, MessageID: msg.ID})
	audit(c, h.emitter, telemetry.ActionMessageDeleted, msg.ConversationID, msg.ID)
	c.Status(http.StatusNoContent)
}

func validReaction(reaction string) bool {
	reaction = strings.TrimSpace(reaction)
	return reaction != "" && utf8.RuneCountInString(reaction) <= maxReactionLength
}

// AddReaction records the caller's reaction.
func (h *MessageHandler) AddReaction(c *gin.Context) {
	var req models.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validReaction(req.Reaction) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reaction"})
		return
	}
	h.react(c, strings.TrimSpace(req.Reaction), true)
}

// RemoveReaction withdraws the caller's reaction.
func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	reaction := c.Param("reaction")
	if !validReaction(reaction) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reaction"})
		return
	}
	h.react(c, strings.TrimSpace(reaction), false)
}

func (h *MessageHandler) react(c *gin.Context, reaction string, add bool) {
	msg, ok := h.loadMessage(c, false)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var err error
	if add {
		err = h.messageRepo.AddReaction(ctx, msg.ID, accountID(c), reaction)
	} else {
		err = h.messageRepo.RemoveReaction(ctx, msg.ID, accountID(c), reaction)
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "could not update reaction"})
		return
	}

	h.hub.Broadcast(msg.ConversationID, models.Event{Type: models.EventReaction, ConversationID: msg.ConversationID, MessageID: msg.ID})
	c.Status(http.StatusNoContent)
}
