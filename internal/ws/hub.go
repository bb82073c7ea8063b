// Package ws implements the push hub: per-conversation rooms with typing and presence fan-out.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"thinkshare/internal/models"
	"thinkshare/internal/observability"
)

const routingKey = "ws_events.conversations"

var ErrNotParticipant = errors.New("not a participant of this conversation")

// Membership answers whether an account may join a conversation room.
type Membership interface {
	IsParticipant(ctx context.Context, conversationID string, accountID string) (bool, error)
}

type presenceEntry struct {
	conns    int
	lastSeen time.Time
}

// Hub maintains active rooms and account presence.
type Hub struct {
	rooms    map[string]map[*Client]bool
	presence map[string]*presenceEntry
	members  Membership
	log      *zap.Logger
	now      func() time.Time
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub(members Membership, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[*Client]bool),
		presence: make(map[string]*presenceEntry),
		members:  members,
		log:      log.Named("ws"),
		now:      time.Now,
	}
}

// Register tracks a new connection for presence.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.presence[c.AccountID]
	if !ok {
		entry = &presenceEntry{}
		h.presence[c.AccountID] = entry
	}
	entry.conns++
	entry.lastSeen = h.now()
}

// Unregister removes the client from every room. When it was the account's
// last connection, the rooms it was in receive an offline presence frame.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for convID := range c.rooms {
		rooms = append(rooms, convID)
		h.leaveLocked(c, convID)
	}

	offline := false
	var lastSeen time.Time
	if entry, ok := h.presence[c.AccountID]; ok {
		entry.conns--
		entry.lastSeen = h.now()
		lastSeen = entry.lastSeen
		if entry.conns <= 0 {
			delete(h.presence, c.AccountID)
			offline = true
		}
	}
	h.mu.Unlock()

	if !offline {
		return
	}
	event := models.Event{Type: models.EventPresence, AccountID: c.AccountID, Status: models.PresenceOffline, LastSeen: &lastSeen}
	for _, convID := range rooms {
		h.broadcast(convID, event, nil)
	}
}

// Subscribe adds the client to a conversation room after checking participation.
func (h *Hub) Subscribe(ctx context.Context, c *Client, conversationID string) error {
	ok, err := h.members.IsParticipant(ctx, conversationID, c.AccountID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}

	h.mu.Lock()
	room, exists := h.rooms[conversationID]
	if !exists {
		room = make(map[*Client]bool)
		h.rooms[conversationID] = room
	}
	room[c] = true
	c.rooms[conversationID] = true

	now := h.now()
	var others []models.Event
	seen := map[string]bool{c.AccountID: true}
	for other := range room {
		if seen[other.AccountID] {
			continue
		}
		seen[other.AccountID] = true
		if entry, ok := h.presence[other.AccountID]; ok {
			lastSeen := entry.lastSeen
			others = append(others, models.Event{Type: models.EventPresence, AccountID: other.AccountID, Status: models.PresenceOnline, LastSeen: &lastSeen})
		}
	}
	h.mu.Unlock()

	for _, ev := range others {
		c.sendEvent(ev)
	}
	h.broadcast(conversationID, models.Event{Type: models.EventPresence, AccountID: c.AccountID, Status: models.PresenceOnline, LastSeen: &now}, c)
	return nil
}

// Unsubscribe removes the client from a room.
func (h *Hub) Unsubscribe(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, conversationID)
}

func (h *Hub) leaveLocked(c *Client, conversationID string) {
	delete(c.rooms, conversationID)
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// Touch refreshes the account's last-seen time.
func (h *Hub) Touch(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.presence[c.AccountID]; ok {
		entry.lastSeen = h.now()
	}
}

// Heartbeat refreshes last-seen and re-announces the account as online to its rooms.
func (h *Hub) Heartbeat(c *Client) {
	h.mu.Lock()
	entry, ok := h.presence[c.AccountID]
	if !ok {
		h.mu.Unlock()
		return
	}
	entry.lastSeen = h.now()
	lastSeen := entry.lastSeen
	rooms := make([]string, 0, len(c.rooms))
	for convID := range c.rooms {
		rooms = append(rooms, convID)
	}
	h.mu.Unlock()

	for _, convID := range rooms {
		h.broadcast(convID, models.Event{Type: models.EventPresence, AccountID: c.AccountID, Status: models.PresenceOnline, LastSeen: &lastSeen}, c)
	}
}

// Typing relays a typing frame to the rest of the room.
func (h *Hub) Typing(c *Client, conversationID string, isTyping bool) {
	h.mu.RLock()
	joined := c.rooms[conversationID]
	h.mu.RUnlock()
	if !joined {
		return
	}
	h.broadcast(conversationID, models.Event{
		Type:           models.EventTyping,
		ConversationID: conversationID,
		AccountID:      c.AccountID,
		IsTyping:       isTyping,
	}, c)
}

// Broadcast sends an event to everyone in the conversation room.
func (h *Hub) Broadcast(conversationID string, event models.Event) {
	if event.ConversationID == "" {
		event.ConversationID = conversationID
	}
	h.broadcast(conversationID, event, nil)
}

func (h *Hub) broadcast(conversationID string, event models.Event, except *Client) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(payload) {
			h.log.Warn("dropping slow client", zap.String("conn_id", c.Info.ConnID), zap.String("account_id", c.AccountID))
			h.publishWSError(c, errSlowClient)
			c.Close()
		}
	}
	observability.IncWSEvent("out", string(event.Type))
}

// RoomSize reports how many connections are subscribed to a conversation.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Online reports whether the account has at least one open connection.
func (h *Hub) Online(accountID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.presence[accountID]
	return ok
}

func (h *Hub) publishWSError(c *Client, err error) {
	publish(context.Background(), c.Info, "ws_error", err.Error())
}

func publish(ctx context.Context, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   info.payload(event, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent("lifecycle", event)
}
