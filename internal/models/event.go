package models

import "time"

// EventType enumerates push channel frames.
type EventType string

const (
	EventMessage  EventType = "message"
	EventEdit     EventType = "edit"
	EventDelete   EventType = "delete"
	EventReaction EventType = "reaction"
	EventTyping   EventType = "typing"
	EventPresence EventType = "presence"

	// client -> server only
	EventSubscribe   EventType = "subscribe"
	EventUnsubscribe EventType = "unsubscribe"
	EventPing        EventType = "ping"
)

// Invalidates reports whether the event only signals that conversation data changed.
func (t EventType) Invalidates() bool {
	switch t {
	case EventMessage, EventEdit, EventDelete, EventReaction:
		return true
	}
	return false
}

// PresenceStatus is the coarse availability of an account.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// Event is the frame exchanged over the push channel in both directions.
type Event struct {
	Type           EventType      `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	AccountID      string         `json:"account_id,omitempty"`
	IsTyping       bool           `json:"is_typing,omitempty"`
	Status         PresenceStatus `json:"status,omitempty"`
	LastSeen       *time.Time     `json:"last_seen,omitempty"`
}
