package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"thinkshare/internal/models"
	"thinkshare/internal/observability"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBuffer  = 64
	maxFrameLen = 8 << 10
)

var errSlowClient = errors.New("send buffer full")

// Client is one push channel connection. Only WritePump writes to Conn.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	rooms     map[string]bool

	AccountID string
	Info      ConnInfo
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		rooms:     make(map[string]bool),
		AccountID: info.AccountID,
		Info:      info,
	}
}

func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) sendEvent(event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.enqueue(payload)
}

// Close stops the writer and closes the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// ReadPump decodes incoming frames until the connection fails. It unregisters the client on exit.
func (c *Client) ReadPump(ctx context.Context) string {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxFrameLen)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.hub.Touch(c)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.publishWSError(c, err)
			}
			return err.Error()
		}

		var frame models.Event
		if err := json.Unmarshal(data, &frame); err != nil {
			c.hub.log.Debug("bad frame", zap.String("conn_id", c.Info.ConnID), zap.Error(err))
			continue
		}
		observability.IncWSEvent("in", string(frame.Type))
		c.process(ctx, frame)
	}
}

func (c *Client) process(ctx context.Context, frame models.Event) {
	switch frame.Type {
	case models.EventSubscribe:
		if frame.ConversationID == "" {
			return
		}
		if err := c.hub.Subscribe(ctx, c, frame.ConversationID); err != nil {
			c.hub.log.Info("subscribe rejected",
				zap.String("conversation_id", frame.ConversationID),
				zap.String("account_id", c.AccountID),
				zap.Error(err))
		}
	case models.EventUnsubscribe:
		c.hub.Unsubscribe(c, frame.ConversationID)
	case models.EventTyping:
		c.hub.Typing(c, frame.ConversationID, frame.IsTyping)
	case models.EventPing:
		c.hub.Heartbeat(c)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
