// Package convsync keeps one client's view of its conversations consistent
// with the server: the active conversation's history, optimistic sends,
// typing indicators, presence and unread counts.
package convsync

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"thinkshare/internal/models"
	"thinkshare/internal/observability"
)

// Remote is the request/response side of the messaging API.
type Remote interface {
	ListConversations(ctx context.Context, accountID string) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID, accountID string) ([]models.Message, error)
	SendMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error)
	MarkRead(ctx context.Context, conversationID, accountID string) error
	ReactToMessage(ctx context.Context, messageID, accountID, reaction string) error
	RemoveReaction(ctx context.Context, messageID, accountID, reaction string) error
	EditMessage(ctx context.Context, messageID, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// Channel is the push side. Events flow back through OnRemoteUpdate.
type Channel interface {
	Subscribe(ctx context.Context, conversationID string) error
	Unsubscribe(ctx context.Context, conversationID string) error
	SendTyping(ctx context.Context, conversationID string, isTyping bool) error
}

type nopChannel struct{}

func (nopChannel) Subscribe(context.Context, string) error        { return nil }
func (nopChannel) Unsubscribe(context.Context, string) error      { return nil }
func (nopChannel) SendTyping(context.Context, string, bool) error { return nil }

type fetchMode int

const (
	// fetchCall results are returned to the caller.
	fetchCall fetchMode = iota
	// fetchPush results are reported to listeners and show Loading.
	fetchPush
	// fetchPoll runs without leaving the current state until it resolves.
	fetchPoll
)

// Synchronizer owns the client-side conversation state. All exported methods are safe for concurrent use.
type Synchronizer struct {
	remote    Remote
	channel   Channel
	accountID string
	opts      options
	log       *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	wake    chan struct{}
	changes chan struct{}

	mu             sync.Mutex
	started        bool
	closed         bool
	active         string
	state          State
	err            error
	gen            uint64
	seq            uint64
	appliedSeq     uint64
	listSeq        uint64
	appliedListSeq uint64
	selCtx         context.Context
	selCancel      context.CancelFunc
	messages       []models.Message
	acked          map[string]ackedSend
	conversations  []models.Conversation
	typing         map[typingKey]*typingEntry
	presence       map[string]Presence
	queue          []sendItem
	typingLimiter  *rate.Limiter
	announced      bool
	listeners      []func(error)
}

// New builds a synchronizer for accountID. A nil channel disables push; polling still applies.
func New(remote Remote, channel Channel, accountID string, opts ...Option) *Synchronizer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if channel == nil {
		channel = nopChannel{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	selCtx, selCancel := context.WithCancel(ctx)
	return &Synchronizer{
		remote:    remote,
		channel:   channel,
		accountID: accountID,
		opts:      o,
		log:       o.log.With(zap.String("account_id", accountID)),
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		changes:   make(chan struct{}, 1),
		state:     Idle,
		selCtx:    selCtx,
		selCancel: selCancel,
		acked:     make(map[string]ackedSend),
		typing:    make(map[typingKey]*typingEntry),
		presence:  make(map[string]Presence),
	}
}

// Start launches the send worker and the poll loop. Cancelling ctx has the same effect as Close.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	context.AfterFunc(ctx, s.cancel)
	s.wg.Add(2)
	go s.sendLoop()
	go s.pollLoop()
}

// Close stops background work, withdraws any typing announcement and unsubscribes the active conversation.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	active := s.active
	announced := s.takeTypingLocked()
	s.clearTypingLocked("")
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	observability.SetSendQueueDepth(0)

	if active == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if announced {
		s.sendTyping(ctx, active, false)
	}
	if err := s.channel.Unsubscribe(ctx, active); err != nil {
		s.log.Debug("unsubscribe on close", zap.String("conversation_id", active), zap.Error(err))
	}
	return nil
}

// SelectConversation makes conversationID active. Any earlier selection's
// in-flight work is cancelled and its results are never applied. It returns
// context.Canceled when a newer selection supersedes this one.
func (s *Synchronizer) SelectConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return &ValidationError{Reason: "conversation id is required"}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.active
	announced := s.takeTypingLocked()
	s.selCancel()
	s.gen++
	gen := s.gen
	s.selCtx, s.selCancel = context.WithCancel(s.ctx)
	selCtx := s.selCtx
	if prev != conversationID {
		s.messages = nil
		clear(s.acked)
		s.clearTypingLocked(prev)
	}
	s.active = conversationID
	s.state = Loading
	s.err = nil
	s.zeroUnreadLocked()
	s.mu.Unlock()
	s.signal()
	s.notify()

	if prev != "" && prev != conversationID {
		if announced {
			s.sendTyping(selCtx, prev, false)
		}
		if err := s.channel.Unsubscribe(selCtx, prev); err != nil {
			s.log.Debug("unsubscribe failed", zap.String("conversation_id", prev), zap.Error(err))
		}
	}
	if err := s.channel.Subscribe(selCtx, conversationID); err != nil {
		s.log.Warn("subscribe failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}

	callCtx, cancel := context.WithCancel(selCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := s.remote.MarkRead(callCtx, conversationID, s.accountID); err != nil {
		if s.superseded(gen) {
			return context.Canceled
		}
		if !isContextErr(err) {
			s.log.Warn("mark read failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	return s.fetch(callCtx, gen, fetchCall)
}

// Retry refetches the active conversation, typically after a FetchFailed.
func (s *Synchronizer) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.active == "" {
		s.mu.Unlock()
		return &ValidationError{Reason: "no active conversation"}
	}
	gen, selCtx := s.gen, s.selCtx
	s.mu.Unlock()

	callCtx, cancel := context.WithCancel(selCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return s.fetch(callCtx, gen, fetchCall)
}

// RefreshConversations reloads the conversation list. The active conversation always reads as fully read.
func (s *Synchronizer) RefreshConversations(ctx context.Context) error {
	s.mu.Lock()
	s.listSeq++
	seq := s.listSeq
	s.mu.Unlock()

	convs, err := s.remote.ListConversations(ctx, s.accountID)
	if err != nil {
		if isContextErr(err) {
			return err
		}
		return translateFetch("", err)
	}

	s.mu.Lock()
	if seq <= s.appliedListSeq {
		s.mu.Unlock()
		return nil
	}
	s.appliedListSeq = seq
	s.conversations = convs
	s.zeroUnreadLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// OnRemoteUpdate applies a push event. Message-level events only invalidate; the data is refetched.
func (s *Synchronizer) OnRemoteUpdate(event models.Event) {
	switch {
	case event.Type.Invalidates():
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if event.ConversationID != "" && event.ConversationID == s.active {
			s.invalidateLocked()
		}
		if event.Type == models.EventMessage || event.ConversationID != s.active {
			s.goLocked(s.refreshInBackground)
		}
		s.mu.Unlock()
		s.notify()
	case event.Type == models.EventTyping:
		s.applyTyping(event)
	case event.Type == models.EventPresence:
		s.applyPresence(event)
	}
}

// OnReconnect re-subscribes the active conversation and refetches everything the outage may have hidden.
func (s *Synchronizer) OnReconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if active := s.active; active != "" {
		ctx := s.selCtx
		s.goLocked(func() {
			if err := s.channel.Subscribe(ctx, active); err != nil {
				s.log.Warn("resubscribe failed", zap.String("conversation_id", active), zap.Error(err))
			}
		})
		s.invalidateLocked()
	}
	s.goLocked(s.refreshInBackground)
	s.mu.Unlock()
	s.notify()
}

// HandleEvent lets the synchronizer be driven directly by the push channel client.
func (s *Synchronizer) HandleEvent(event models.Event) { s.OnRemoteUpdate(event) }

// HandleReconnect is called by the push channel client after it re-establishes the connection.
func (s *Synchronizer) HandleReconnect() { s.OnReconnect() }

// Snapshot copies the current view. Typing indicators past their expiry are left out.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	snap := Snapshot{
		ConversationID: s.active,
		State:          s.state,
		Err:            s.err,
		Messages:       append([]models.Message(nil), s.messages...),
		Conversations:  append([]models.Conversation(nil), s.conversations...),
		Presence:       make(map[string]Presence, len(s.presence)),
	}
	for key, entry := range s.typing {
		if key.conversationID != s.active || !now.Before(entry.expiresAt) {
			continue
		}
		snap.Typing = append(snap.Typing, TypingIndicator{
			ConversationID: key.conversationID,
			AccountID:      key.accountID,
			ExpiresAt:      entry.expiresAt,
		})
	}
	sort.Slice(snap.Typing, func(i, j int) bool { return snap.Typing[i].AccountID < snap.Typing[j].AccountID })
	for id, p := range s.presence {
		snap.Presence[id] = s.opts.presence.Effective(p, now)
	}
	return snap
}

// Changes fires after any state change. Notifications coalesce; read Snapshot for the latest view.
func (s *Synchronizer) Changes() <-chan struct{} {
	return s.changes
}

// OnError registers a listener for failures that have no caller to return to, such as background sends.
func (s *Synchronizer) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Synchronizer) report(err error) {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// fetch loads the active conversation's history and merges it in when gen is
// still current and no newer fetch has been applied.
func (s *Synchronizer) fetch(ctx context.Context, gen uint64, mode fetchMode) error {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return context.Canceled
	}
	s.seq++
	seq := s.seq
	conversationID := s.active
	changed := mode != fetchPoll && s.state != Loading
	if changed {
		s.state = Loading
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}

	msgs, err := s.remote.ListMessages(ctx, conversationID, s.accountID)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		observability.ObserveFetch("discarded")
		return context.Canceled
	}
	latest := seq == s.seq
	if err != nil && isContextErr(err) {
		if latest && s.state == Loading {
			s.state = Stale
		}
		s.mu.Unlock()
		observability.ObserveFetch("canceled")
		s.signal()
		s.notify()
		return err
	}
	if seq <= s.appliedSeq {
		s.mu.Unlock()
		observability.ObserveFetch("discarded")
		return nil
	}
	s.appliedSeq = seq

	if err != nil {
		ferr := translateFetch(conversationID, err)
		first := s.err == nil
		s.err = ferr
		if latest {
			s.state = Failed
		}
		s.mu.Unlock()
		observability.ObserveFetch("failed")
		s.log.Warn("fetch failed", zap.String("conversation_id", conversationID), zap.Error(err))
		s.signal()
		s.notify()
		if mode != fetchCall && first {
			s.report(ferr)
		}
		return ferr
	}

	s.messages = merge(s.carryAckedLocked(msgs, seq), s.messages)
	s.err = nil
	if latest {
		s.state = Ready
	}
	s.mu.Unlock()
	observability.ObserveFetch("ok")
	s.signal()
	s.notify()
	return nil
}

// carryAckedLocked adds acknowledged sends that a listing taken before the
// acknowledgment cannot contain yet. A listing started after the ack, or one
// that already has the message, settles the entry.
func (s *Synchronizer) carryAckedLocked(server []models.Message, seq uint64) []models.Message {
	if len(s.acked) == 0 {
		return server
	}
	listed := make(map[string]struct{}, len(server))
	for _, m := range server {
		listed[m.ID] = struct{}{}
	}
	out := server
	for id, a := range s.acked {
		if _, ok := listed[id]; ok || seq > a.seq {
			delete(s.acked, id)
			continue
		}
		if len(out) == len(server) {
			out = slices.Clone(server)
		}
		out = append(out, a.msg)
	}
	return out
}

// invalidateLocked marks the active conversation stale and schedules a refetch.
func (s *Synchronizer) invalidateLocked() {
	if s.state != Loading {
		s.state = Stale
	}
	gen, ctx := s.gen, s.selCtx
	s.goLocked(func() { _ = s.fetch(ctx, gen, fetchPush) })
}

func (s *Synchronizer) refreshInBackground() {
	if err := s.RefreshConversations(s.ctx); err != nil && !isContextErr(err) {
		s.log.Debug("conversation refresh failed", zap.Error(err))
	}
}

func (s *Synchronizer) pollLoop() {
	defer s.wg.Done()
	if s.opts.pollInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *Synchronizer) poll() {
	s.mu.Lock()
	active, gen, ctx := s.active, s.gen, s.selCtx
	var denied *PermissionDenied
	skip := active == "" || errors.As(s.err, &denied)
	s.mu.Unlock()

	if !skip {
		_ = s.fetch(ctx, gen, fetchPoll)
	}
	s.refreshInBackground()
}

// goLocked runs fn on a tracked goroutine unless the synchronizer is closing. s.mu must be held.
func (s *Synchronizer) goLocked(fn func()) {
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Synchronizer) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen
}

func (s *Synchronizer) zeroUnreadLocked() {
	for i := range s.conversations {
		if s.conversations[i].ID == s.active {
			s.conversations[i].UnreadCount = 0
		}
	}
}

func (s *Synchronizer) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
