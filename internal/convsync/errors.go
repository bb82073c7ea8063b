package convsync

import (
	"context"
	"errors"
	"fmt"

	"thinkshare/internal/rpc"
)

var ErrClosed = errors.New("convsync: synchronizer closed")

// ValidationError is a local input problem; nothing was sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// SendFailed reports a rejected mutation. Content carries what the user typed so it can be retried.
type SendFailed struct {
	Op             string
	ConversationID string
	MessageID      string
	Content        string
	ReplyTo        string
	Err            error
}

func (e *SendFailed) Error() string {
	return fmt.Sprintf("%s failed in %s: %v", e.Op, e.ConversationID, e.Err)
}

func (e *SendFailed) Unwrap() error {
	return e.Err
}

// FetchFailed reports a listing or history fetch that did not complete. Stale data stays visible.
type FetchFailed struct {
	ConversationID string
	Err            error
}

func (e *FetchFailed) Error() string {
	if e.ConversationID == "" {
		return fmt.Sprintf("fetch conversations: %v", e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.ConversationID, e.Err)
}

func (e *FetchFailed) Unwrap() error {
	return e.Err
}

// PermissionDenied is a server-side authorization failure. It is not retried automatically.
type PermissionDenied struct {
	Op             string
	ConversationID string
	Err            error
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("%s %s: permission denied", e.Op, e.ConversationID)
}

func (e *PermissionDenied) Unwrap() error {
	return e.Err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func translateFetch(conversationID string, err error) error {
	if errors.Is(err, rpc.ErrPermissionDenied) {
		return &PermissionDenied{Op: "fetch", ConversationID: conversationID, Err: err}
	}
	return &FetchFailed{ConversationID: conversationID, Err: err}
}

func translateMutation(f SendFailed) error {
	if errors.Is(f.Err, rpc.ErrPermissionDenied) {
		return &PermissionDenied{Op: f.Op, ConversationID: f.ConversationID, Err: f.Err}
	}
	return &f
}
