package models

import "time"

// Message represents a message inside a conversation.
type Message struct {
	ID             string              `db:"id" json:"id"`
	ConversationID string              `db:"conversation_id" json:"conversation_id"`
	SenderID       string              `db:"sender_id" json:"sender_id"`
	Sender         *Account            `db:"-" json:"sender,omitempty"`
	Content        string              `db:"content" json:"content"`
	ReplyTo        string              `db:"reply_to" json:"reply_to,omitempty"`
	ClientRef      string              `db:"client_ref" json:"client_ref,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	EditedAt       *time.Time          `db:"edited_at" json:"edited_at,omitempty"`
	DeletedForAll  bool                `db:"deleted_for_all" json:"deleted_for_all,omitempty"`
	ReadBy         []string            `db:"-" json:"read_by,omitempty"`
	Reactions      map[string][]string `db:"-" json:"reactions,omitempty"`

	// Pending marks a local optimistic copy that the server has not acknowledged.
	Pending bool `db:"-" json:"-"`
}

// SendMessageRequest is the body of POST /conversations/:id/messages.
type SendMessageRequest struct {
	ConversationID string `json:"-"`
	Content        string `json:"content"`
	ReplyTo        string `json:"reply_to,omitempty"`
	ClientRef      string `json:"client_ref,omitempty"`
}

// EditMessageRequest is the body of PATCH /messages/:id.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// ReactionRequest is the body of POST /messages/:id/reactions.
type ReactionRequest struct {
	Reaction string `json:"reaction"`
}

// Reaction is a single (message, account, emoji) row.
type Reaction struct {
	MessageID string `db:"message_id" json:"message_id"`
	AccountID string `db:"account_id" json:"account_id"`
	Reaction  string `db:"reaction" json:"reaction"`
}
