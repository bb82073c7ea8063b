package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkshare/internal/models"
)

type fakeServer struct {
	srv    *httptest.Server
	conns  chan *websocket.Conn
	frames chan models.Event
	auth   chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		conns:  make(chan *websocket.Conn, 8),
		frames: make(chan models.Event, 64),
		auth:   make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
		for {
			var ev models.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			fs.frames <- ev
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func (fs *fakeServer) nextFrame(t *testing.T, want models.EventType) models.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-fs.frames:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s frame", want)
			return models.Event{}
		}
	}
}

type recorder struct {
	events     chan models.Event
	reconnects chan struct{}
}

func newRecorder() *recorder {
	return &recorder{events: make(chan models.Event, 16), reconnects: make(chan struct{}, 4)}
}

func (r *recorder) HandleEvent(ev models.Event) { r.events <- ev }
func (r *recorder) HandleReconnect()             { r.reconnects <- struct{}{} }

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func TestSubscribeAndReceive(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	client := New(fs.url(), "tok", WithBackOff(fastBackOff))
	defer client.Close()

	require.NoError(t, client.Subscribe(context.Background(), "c1"))
	client.Start(context.Background(), rec)

	conn := fs.nextConn(t)
	assert.Equal(t, "Bearer tok", <-fs.auth)
	assert.Equal(t, "c1", fs.nextFrame(t, models.EventSubscribe).ConversationID)

	require.NoError(t, conn.WriteJSON(models.Event{Type: models.EventMessage, ConversationID: "c1", MessageID: "m1"}))
	select {
	case ev := <-rec.events:
		assert.Equal(t, "m1", ev.MessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.Eventually(t, client.Connected, time.Second, 10*time.Millisecond)
}

func TestTypingFrame(t *testing.T) {
	fs := newFakeServer(t)
	client := New(fs.url(), "", WithBackOff(fastBackOff))
	defer client.Close()
	client.Start(context.Background(), newRecorder())
	fs.nextConn(t)

	require.NoError(t, client.SendTyping(context.Background(), "c1", true))
	ev := fs.nextFrame(t, models.EventTyping)
	assert.Equal(t, "c1", ev.ConversationID)
	assert.True(t, ev.IsTyping)
}

// rejoiner subscribes again from HandleReconnect, like the synchronizer does.
type rejoiner struct {
	*recorder
	client *Client
	room   string
}

func (r *rejoiner) HandleReconnect() {
	_ = r.client.Subscribe(context.Background(), r.room)
	r.recorder.HandleReconnect()
}

func TestReconnectSubscribesOncePerRoom(t *testing.T) {
	fs := newFakeServer(t)
	client := New(fs.url(), "", WithBackOff(fastBackOff))
	defer client.Close()
	h := &rejoiner{recorder: newRecorder(), client: client, room: "c1"}

	client.Start(context.Background(), h)
	first := fs.nextConn(t)
	require.NoError(t, client.Subscribe(context.Background(), "c1"))
	fs.nextFrame(t, models.EventSubscribe)

	first.Close()

	fs.nextConn(t)
	select {
	case <-h.reconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect not reported")
	}
	assert.Equal(t, "c1", fs.nextFrame(t, models.EventSubscribe).ConversationID)

	select {
	case ev := <-fs.frames:
		assert.NotEqual(t, models.EventSubscribe, ev.Type, "room subscribed twice")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestUndecodableFrameIsSkipped(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	client := New(fs.url(), "", WithBackOff(fastBackOff))
	defer client.Close()
	client.Start(context.Background(), rec)
	conn := fs.nextConn(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(models.Event{Type: models.EventPresence, AccountID: "a"}))

	select {
	case ev := <-rec.events:
		assert.Equal(t, models.EventPresence, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, rec.reconnects)
}

func TestCloseStopsClient(t *testing.T) {
	fs := newFakeServer(t)
	client := New(fs.url(), "", WithBackOff(fastBackOff))
	client.Start(context.Background(), newRecorder())
	fs.nextConn(t)

	require.NoError(t, client.Close())
	assert.False(t, client.Connected())
	assert.ErrorIs(t, client.Subscribe(context.Background(), "c1"), ErrClosed)
}

func TestCloseWhileDialing(t *testing.T) {
	client := New("ws://127.0.0.1:1/ws", "", WithBackOff(fastBackOff))
	client.Start(context.Background(), newRecorder())

	done := make(chan struct{})
	go func() {
		client.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close blocked")
	}
}
