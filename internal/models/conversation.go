package models

import "time"

// ConversationType distinguishes one-to-one chats from thinktanks.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation represents a direct chat or a group (thinktank) chat.
type Conversation struct {
	ID           string           `db:"id" json:"id"`
	Type         ConversationType `db:"type" json:"type"`
	Name         string           `db:"name" json:"name,omitempty"`
	CreatedBy    string           `db:"created_by" json:"created_by"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	LastActivity time.Time        `db:"last_activity" json:"last_activity"`
	UnreadCount  int              `db:"unread_count" json:"unread_count"`
	Participants []string         `db:"-" json:"participants"`
	LastMessage  *Message         `db:"-" json:"last_message,omitempty"`
}

// HasParticipant reports whether accountID takes part in the conversation.
func (c Conversation) HasParticipant(accountID string) bool {
	for _, p := range c.Participants {
		if p == accountID {
			return true
		}
	}
	return false
}

// Participant models per-account conversation state.
type Participant struct {
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	AccountID      string    `db:"account_id" json:"account_id"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
	LastReadAt     time.Time `db:"last_read_at" json:"last_read_at"`
}

// CreateConversationRequest starts a direct chat (ParticipantID) or a group (Name + MemberIDs).
type CreateConversationRequest struct {
	Type          ConversationType `json:"type"`
	ParticipantID string           `json:"participant_id,omitempty"`
	Name          string           `json:"name,omitempty"`
	MemberIDs     []string         `json:"member_ids,omitempty"`
}
