// Package realtime is the push channel client: subscriptions, typing frames and
// event callbacks over a websocket that reconnects on failure.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"thinkshare/internal/models"
)

var ErrClosed = errors.New("realtime: client closed")

const (
	outboxSize   = 64
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Handler receives push events. Calls arrive on the client's read goroutine and must not block.
type Handler interface {
	HandleEvent(event models.Event)
	HandleReconnect()
}

// Client maintains one logical push channel across reconnects.
type Client struct {
	url        string
	token      string
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
	ping       time.Duration
	header     http.Header
	log        *zap.Logger

	outbox chan models.Event
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	started   bool
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log.Named("realtime") }
}

// WithBackOff replaces the reconnect policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.ping = d }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithHeader adds a header to every dial, e.g. X-Device-Id.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.header.Set(key, value)
		}
	}
}

func defaultBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0
	return eb
}

// New builds a client for a ws:// or wss:// url.
func New(url, token string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		token:      token,
		dialer:     websocket.DefaultDialer,
		newBackOff: defaultBackOff,
		ping:       pingInterval,
		header:     http.Header{},
		log:        zap.NewNop(),
		outbox:     make(chan models.Event, outboxSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start connects in the background and delivers events to h until Close.
func (c *Client) Start(ctx context.Context, h Handler) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx, h)
}

// Close stops reconnecting and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
	return nil
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe joins a conversation room. Rooms are not rejoined automatically
// after a reconnect; the Handler does that from HandleReconnect.
func (c *Client) Subscribe(ctx context.Context, conversationID string) error {
	return c.enqueue(ctx, models.Event{Type: models.EventSubscribe, ConversationID: conversationID})
}

// Unsubscribe leaves a conversation room.
func (c *Client) Unsubscribe(ctx context.Context, conversationID string) error {
	return c.enqueue(ctx, models.Event{Type: models.EventUnsubscribe, ConversationID: conversationID})
}

// SendTyping announces the local typing state.
func (c *Client) SendTyping(ctx context.Context, conversationID string, isTyping bool) error {
	return c.enqueue(ctx, models.Event{Type: models.EventTyping, ConversationID: conversationID, IsTyping: isTyping})
}

func (c *Client) enqueue(ctx context.Context, frame models.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outbox <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) run(ctx context.Context, h Handler) {
	defer close(c.done)

	first := true
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			return
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		stop := make(chan struct{})
		writerDone := make(chan struct{})
		go c.writeLoop(conn, stop, writerDone)

		if !first {
			c.log.Info("reconnected")
			h.HandleReconnect()
		}
		first = false

		err = c.readLoop(conn, h)
		close(stop)
		conn.Close()
		<-writerDone

		c.mu.Lock()
		c.conn = nil
		c.connected = false
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		c.log.Warn("push channel dropped", zap.Error(err))
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := c.header.Clone()
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	var conn *websocket.Conn
	op := func() error {
		var err error
		conn, _, err = c.dialer.DialContext(ctx, c.url, header)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Debug("dial failed", zap.Error(err), zap.Duration("retry_in", wait))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn, h Handler) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev models.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Debug("skipping undecodable frame", zap.Error(err))
			continue
		}
		h.HandleEvent(ev)
	}
}

func (c *Client) writeLoop(conn *websocket.Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.ping)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(models.Event{Type: models.EventPing}); err != nil {
				conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}
