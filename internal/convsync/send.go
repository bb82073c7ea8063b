package convsync

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"thinkshare/internal/models"
	"thinkshare/internal/observability"
)

const pendingPrefix = "pending-"

type sendItem struct {
	conversationID string
	typed          string
	content        string
	replyTo        string
	clientRef      string
}

// SendMessage appends an optimistic copy to the active conversation and queues
// the send. Sends leave in submission order; while the active conversation is
// Loading they wait for the fetch to resolve. A rejected send removes the
// optimistic copy and is reported once through OnError as *SendFailed.
func (s *Synchronizer) SendMessage(content, replyTo string) (models.Message, error) {
	trimmed, err := s.validContent(content)
	if err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.Message{}, ErrClosed
	}
	if s.active == "" {
		s.mu.Unlock()
		return models.Message{}, &ValidationError{Reason: "no active conversation"}
	}
	if replyTo != "" && !s.hasConfirmedLocked(replyTo) {
		replyTo = ""
	}

	ref := uuid.NewString()
	msg := models.Message{
		ID:             pendingPrefix + ref,
		ConversationID: s.active,
		SenderID:       s.accountID,
		Content:        trimmed,
		ReplyTo:        replyTo,
		ClientRef:      ref,
		CreatedAt:      s.opts.now(),
		Pending:        true,
	}
	s.messages = append(s.messages, msg)
	s.queue = append(s.queue, sendItem{
		conversationID: s.active,
		typed:          content,
		content:        trimmed,
		replyTo:        replyTo,
		clientRef:      ref,
	})
	depth := len(s.queue)
	conversationID, ctx := s.active, s.selCtx
	announced := s.takeTypingLocked()
	s.mu.Unlock()

	observability.SetSendQueueDepth(depth)
	s.signal()
	s.notify()
	if announced {
		s.sendTyping(ctx, conversationID, false)
	}
	return msg, nil
}

// React adds the caller's reaction to a message.
func (s *Synchronizer) React(ctx context.Context, messageID, reaction string) error {
	if messageID == "" || reaction == "" {
		return &ValidationError{Reason: "message id and reaction are required"}
	}
	return s.mutate(ctx, "react", messageID, reaction, func(ctx context.Context) error {
		return s.remote.ReactToMessage(ctx, messageID, s.accountID, reaction)
	})
}

// Unreact removes the caller's reaction from a message.
func (s *Synchronizer) Unreact(ctx context.Context, messageID, reaction string) error {
	if messageID == "" || reaction == "" {
		return &ValidationError{Reason: "message id and reaction are required"}
	}
	return s.mutate(ctx, "unreact", messageID, reaction, func(ctx context.Context) error {
		return s.remote.RemoveReaction(ctx, messageID, s.accountID, reaction)
	})
}

// Edit replaces the content of one of the caller's messages.
func (s *Synchronizer) Edit(ctx context.Context, messageID, content string) error {
	if messageID == "" {
		return &ValidationError{Reason: "message id is required"}
	}
	trimmed, err := s.validContent(content)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "edit", messageID, content, func(ctx context.Context) error {
		_, err := s.remote.EditMessage(ctx, messageID, trimmed)
		return err
	})
}

// Delete removes one of the caller's messages for every participant.
func (s *Synchronizer) Delete(ctx context.Context, messageID string) error {
	if messageID == "" {
		return &ValidationError{Reason: "message id is required"}
	}
	return s.mutate(ctx, "delete", messageID, "", func(ctx context.Context) error {
		return s.remote.DeleteMessage(ctx, messageID)
	})
}

func (s *Synchronizer) mutate(ctx context.Context, op, messageID, content string, call func(context.Context) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	conversationID, gen := s.active, s.gen
	s.mu.Unlock()

	if err := call(ctx); err != nil {
		if isContextErr(err) {
			return err
		}
		return translateMutation(SendFailed{Op: op, ConversationID: conversationID, MessageID: messageID, Content: content, Err: err})
	}

	s.mu.Lock()
	if gen == s.gen && s.active != "" && !s.closed {
		s.invalidateLocked()
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Synchronizer) validContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", &ValidationError{Reason: "message is empty"}
	}
	if limit := s.opts.maxMessageLength; limit > 0 && utf8.RuneCountInString(trimmed) > limit {
		return "", &ValidationError{Reason: fmt.Sprintf("message exceeds %d characters", limit)}
	}
	return trimmed, nil
}

func (s *Synchronizer) hasConfirmedLocked(messageID string) bool {
	for _, m := range s.messages {
		if m.ID == messageID && !m.Pending {
			return true
		}
	}
	return false
}

func (s *Synchronizer) sendLoop() {
	defer s.wg.Done()
	for {
		item, ok := s.next()
		if !ok {
			return
		}
		s.dispatch(item)
	}
}

// next blocks until the head of the queue may leave. The head waits only while
// its own conversation is active and Loading.
func (s *Synchronizer) next() (sendItem, bool) {
	for {
		if s.ctx.Err() != nil {
			return sendItem{}, false
		}
		s.mu.Lock()
		if len(s.queue) > 0 {
			head := s.queue[0]
			if head.conversationID != s.active || s.state != Loading {
				s.queue = s.queue[1:]
				depth := len(s.queue)
				s.mu.Unlock()
				observability.SetSendQueueDepth(depth)
				return head, true
			}
		}
		s.mu.Unlock()

		select {
		case <-s.ctx.Done():
			return sendItem{}, false
		case <-s.wake:
		}
	}
}

// ackedSend is a confirmed message remembered until a listing reflects it.
// seq is the last fetch issued when the server acknowledged it.
type ackedSend struct {
	msg models.Message
	seq uint64
}

func (s *Synchronizer) dispatch(item sendItem) {
	msg, err := s.remote.SendMessage(s.ctx, models.SendMessageRequest{
		ConversationID: item.conversationID,
		Content:        item.content,
		ReplyTo:        item.replyTo,
		ClientRef:      item.clientRef,
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		if item.conversationID == s.active {
			s.messages = removePending(s.messages, item.clientRef)
		}
		s.mu.Unlock()
		observability.ObserveSend("failed")
		s.notify()
		s.report(sendFailure(item, err))
		return
	}

	if msg.ClientRef == "" {
		msg.ClientRef = item.clientRef
	}
	s.mu.Lock()
	if item.conversationID == s.active {
		s.messages = confirm(s.messages, msg)
		s.acked[msg.ID] = ackedSend{msg: msg, seq: s.seq}
	}
	s.mu.Unlock()
	observability.ObserveSend("ok")
	s.notify()
}

// sendFailure always yields *SendFailed so the typed content survives; an
// authorization failure is kept reachable through errors.As.
func sendFailure(item sendItem, err error) error {
	f := SendFailed{
		Op:             "send",
		ConversationID: item.conversationID,
		Content:        item.typed,
		ReplyTo:        item.replyTo,
		Err:            err,
	}
	if denied, ok := translateMutation(f).(*PermissionDenied); ok {
		f.Err = denied
	}
	return &f
}
