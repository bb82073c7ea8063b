// Package rpc is the HTTP client for the messaging API.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"thinkshare/internal/models"
)

// Client calls the messaging API on behalf of the account the token was issued to.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log.Named("rpc") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New builds a client for baseURL (e.g. http://localhost:8083).
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListConversations returns the caller's conversations. The server identifies
// the caller by token, so accountID only has to match it.
func (c *Client) ListConversations(ctx context.Context, accountID string) ([]models.Conversation, error) {
	var env conversationsEnvelope
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &env); err != nil {
		return nil, err
	}
	return *env.Conversations, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID, accountID string) ([]models.Message, error) {
	var env messagesEnvelope
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &env); err != nil {
		return nil, err
	}
	return *env.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error) {
	var env messageEnvelope
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(req.ConversationID)+"/messages", req, &env); err != nil {
		return models.Message{}, err
	}
	return *env.Message, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID, accountID string) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil)
}

func (c *Client) ReactToMessage(ctx context.Context, messageID, accountID, reaction string) error {
	return c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reactions", models.ReactionRequest{Reaction: reaction}, nil)
}

func (c *Client) RemoveReaction(ctx context.Context, messageID, accountID, reaction string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID)+"/reactions/"+url.PathEscape(reaction), nil, nil)
}

func (c *Client) EditMessage(ctx context.Context, messageID, content string) (models.Message, error) {
	var env messageEnvelope
	if err := c.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), models.EditMessageRequest{Content: content}, &env); err != nil {
		return models.Message{}, err
	}
	return *env.Message, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

// CreateDirect opens (or returns) the direct conversation with participantID.
func (c *Client) CreateDirect(ctx context.Context, participantID string) (models.Conversation, error) {
	var env conversationEnvelope
	req := models.CreateConversationRequest{Type: models.ConversationDirect, ParticipantID: participantID}
	if err := c.do(ctx, http.MethodPost, "/conversations", req, &env); err != nil {
		return models.Conversation{}, err
	}
	return *env.Conversation, nil
}

// CreateGroup starts a thinktank.
func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) (models.Conversation, error) {
	var env conversationEnvelope
	req := models.CreateConversationRequest{Type: models.ConversationGroup, Name: name, MemberIDs: memberIDs}
	if err := c.do(ctx, http.MethodPost, "/conversations", req, &env); err != nil {
		return models.Conversation{}, err
	}
	return *env.Conversation, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out envelope) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&apiErr)
		return &StatusError{StatusCode: resp.StatusCode, Message: apiErr.Error, kind: kindFor(resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out.Validate()
}
