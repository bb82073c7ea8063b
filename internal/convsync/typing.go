package convsync

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"thinkshare/internal/models"
)

type typingKey struct {
	conversationID string
	accountID      string
}

type typingEntry struct {
	expiresAt time.Time
	timer     *time.Timer
}

// SetTyping announces the local user's typing state in the active conversation.
// Repeated true calls inside the debounce window are suppressed; false is sent at once.
func (s *Synchronizer) SetTyping(isTyping bool) {
	s.mu.Lock()
	conversationID := s.active
	if conversationID == "" || s.closed {
		s.mu.Unlock()
		return
	}
	ctx := s.selCtx
	send := true
	if isTyping {
		if s.typingLimiter == nil {
			s.typingLimiter = rate.NewLimiter(rate.Every(s.opts.typingDebounce), 1)
		}
		send = s.typingLimiter.AllowN(s.opts.now(), 1)
		if send {
			s.announced = true
		}
	} else {
		s.announced = false
		s.typingLimiter = nil
	}
	s.mu.Unlock()

	if send {
		s.sendTyping(ctx, conversationID, isTyping)
	}
}

// takeTypingLocked clears the own typing state and reports whether a true was outstanding.
func (s *Synchronizer) takeTypingLocked() bool {
	announced := s.announced
	s.announced = false
	s.typingLimiter = nil
	return announced
}

func (s *Synchronizer) sendTyping(ctx context.Context, conversationID string, isTyping bool) {
	if err := s.channel.SendTyping(ctx, conversationID, isTyping); err != nil {
		s.log.Debug("typing frame dropped",
			zap.String("conversation_id", conversationID),
			zap.Bool("is_typing", isTyping),
			zap.Error(err))
	}
}

func (s *Synchronizer) applyTyping(event models.Event) {
	if event.AccountID == "" || event.AccountID == s.accountID {
		return
	}
	key := typingKey{conversationID: event.ConversationID, accountID: event.AccountID}

	s.mu.Lock()
	if s.closed || key.conversationID == "" || key.conversationID != s.active {
		s.mu.Unlock()
		return
	}
	if old, ok := s.typing[key]; ok {
		old.timer.Stop()
		delete(s.typing, key)
	}
	if event.IsTyping {
		entry := &typingEntry{expiresAt: s.opts.now().Add(s.opts.typingTTL)}
		entry.timer = time.AfterFunc(s.opts.typingTTL, func() { s.expireTyping(key, entry) })
		s.typing[key] = entry
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) expireTyping(key typingKey, entry *typingEntry) {
	s.mu.Lock()
	current, ok := s.typing[key]
	if ok && current == entry {
		delete(s.typing, key)
	}
	s.mu.Unlock()
	if ok && current == entry {
		s.notify()
	}
}

func (s *Synchronizer) clearTypingLocked(conversationID string) {
	for key, entry := range s.typing {
		if conversationID == "" || key.conversationID == conversationID {
			entry.timer.Stop()
			delete(s.typing, key)
		}
	}
}
