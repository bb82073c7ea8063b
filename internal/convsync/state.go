package convsync

import (
	"time"

	"thinkshare/internal/models"
)

// State is the lifecycle of the active conversation's message list.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Stale
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Stale:
		return "stale"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// TypingIndicator is a peer currently typing in the active conversation.
type TypingIndicator struct {
	ConversationID string
	AccountID      string
	ExpiresAt      time.Time
}

// Presence is a peer's effective availability.
type Presence struct {
	AccountID string
	Status    models.PresenceStatus
	LastSeen  time.Time
}

// Snapshot is a point-in-time copy of the synchronizer's view. Treat it as read-only.
type Snapshot struct {
	ConversationID string
	State          State
	Messages       []models.Message
	Typing         []TypingIndicator
	Presence       map[string]Presence
	Conversations  []models.Conversation
	Err            error
}
