package convsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"thinkshare/internal/mocks"
	"thinkshare/internal/models"
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// fakeRemote is an in-memory server. Gates hold calls until closed.
type fakeRemote struct {
	mu          sync.Mutex
	messages    map[string][]models.Message
	convs       []models.Conversation
	listErr     map[string]error
	listGate    map[string]chan struct{}
	ignoreCtx   bool
	listStarted chan string
	listCalls   int

	sendGate    chan struct{}
	sendStarted chan string
	sendErr     error
	sent        []models.SendMessageRequest
	nextID      int

	markRead  []string
	mutateErr error
	mutations []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		messages:    make(map[string][]models.Message),
		listErr:     make(map[string]error),
		listGate:    make(map[string]chan struct{}),
		listStarted: make(chan string, 64),
		sendStarted: make(chan string, 64),
	}
}

func (f *fakeRemote) seed(conversationID string, contents ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range contents {
		f.appendLocked(conversationID, "peer", c, "")
	}
}

func (f *fakeRemote) appendLocked(conversationID, sender, content, ref string) models.Message {
	f.nextID++
	msg := models.Message{
		ID:             fmt.Sprintf("m%03d", f.nextID),
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
		ClientRef:      ref,
		CreatedAt:      epoch.Add(time.Duration(f.nextID) * time.Second),
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	return msg
}

func (f *fakeRemote) setConversations(convs ...models.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs = convs
}

func (f *fakeRemote) gate(conversationID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.listGate[conversationID] = g
	return g
}

func (f *fakeRemote) setListErr(conversationID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr[conversationID] = err
}

func (f *fakeRemote) sentContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, r := range f.sent {
		out = append(out, r.Content)
	}
	return out
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeRemote) ListConversations(_ context.Context, _ string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Conversation(nil), f.convs...), nil
}

func (f *fakeRemote) ListMessages(ctx context.Context, conversationID, _ string) ([]models.Message, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate[conversationID]
	ignoreCtx := f.ignoreCtx
	f.mu.Unlock()
	select {
	case f.listStarted <- conversationID:
	default:
	}

	if gate != nil {
		if ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[conversationID]; err != nil {
		return nil, err
	}
	return append([]models.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeRemote) SendMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return models.Message{}, err
	}
	msg := f.appendLocked(req.ConversationID, "me", req.Content, req.ClientRef)
	msg.ReplyTo = req.ReplyTo
	gate := f.sendGate
	f.mu.Unlock()
	select {
	case f.sendStarted <- req.ClientRef:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Message{}, ctx.Err()
		}
	}
	return msg, nil
}

func (f *fakeRemote) MarkRead(_ context.Context, conversationID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markRead = append(f.markRead, conversationID)
	return nil
}

func (f *fakeRemote) mutate(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, op)
	return f.mutateErr
}

func (f *fakeRemote) ReactToMessage(_ context.Context, messageID, _, reaction string) error {
	return f.mutate("react:" + messageID + ":" + reaction)
}

func (f *fakeRemote) RemoveReaction(_ context.Context, messageID, _, reaction string) error {
	return f.mutate("unreact:" + messageID + ":" + reaction)
}

func (f *fakeRemote) EditMessage(_ context.Context, messageID, content string) (models.Message, error) {
	return models.Message{ID: messageID, Content: content}, f.mutate("edit:" + messageID)
}

func (f *fakeRemote) DeleteMessage(_ context.Context, messageID string) error {
	return f.mutate("delete:" + messageID)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// looseChannel accepts every call.
func looseChannel() *mocks.ChannelMock {
	ch := new(mocks.ChannelMock)
	ch.On("Subscribe", mock.Anything, mock.Anything).Return(nil).Maybe()
	ch.On("Unsubscribe", mock.Anything, mock.Anything).Return(nil).Maybe()
	ch.On("SendTyping", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return ch
}
