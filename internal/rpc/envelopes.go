package rpc

import (
	"fmt"

	"thinkshare/internal/models"
)

// envelope is implemented by every response body the client decodes.
type envelope interface {
	Validate() error
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

type conversationsEnvelope struct {
	Conversations *[]models.Conversation `json:"conversations"`
}

func (e *conversationsEnvelope) Validate() error {
	if e.Conversations == nil {
		return malformed("missing conversations")
	}
	for i, c := range *e.Conversations {
		if err := validateConversation(c); err != nil {
			return malformed("conversations[%d]: %v", i, err)
		}
	}
	return nil
}

type conversationEnvelope struct {
	Conversation *models.Conversation `json:"conversation"`
}

func (e *conversationEnvelope) Validate() error {
	if e.Conversation == nil {
		return malformed("missing conversation")
	}
	if err := validateConversation(*e.Conversation); err != nil {
		return malformed("conversation: %v", err)
	}
	return nil
}

type messagesEnvelope struct {
	Messages *[]models.Message `json:"messages"`
}

func (e *messagesEnvelope) Validate() error {
	if e.Messages == nil {
		return malformed("missing messages")
	}
	for i, m := range *e.Messages {
		if err := validateMessage(m); err != nil {
			return malformed("messages[%d]: %v", i, err)
		}
	}
	return nil
}

type messageEnvelope struct {
	Message *models.Message `json:"message"`
}

func (e *messageEnvelope) Validate() error {
	if e.Message == nil {
		return malformed("missing message")
	}
	if err := validateMessage(*e.Message); err != nil {
		return malformed("message: %v", err)
	}
	return nil
}

func validateConversation(c models.Conversation) error {
	switch {
	case c.ID == "":
		return fmt.Errorf("empty id")
	case c.Type != models.ConversationDirect && c.Type != models.ConversationGroup:
		return fmt.Errorf("unknown type %q", c.Type)
	case c.UnreadCount < 0:
		return fmt.Errorf("negative unread count")
	}
	return nil
}

func validateMessage(m models.Message) error {
	switch {
	case m.ID == "":
		return fmt.Errorf("empty id")
	case m.ConversationID == "":
		return fmt.Errorf("empty conversation id")
	case m.SenderID == "":
		return fmt.Errorf("empty sender id")
	case m.CreatedAt.IsZero():
		return fmt.Errorf("missing created_at")
	}
	return nil
}
