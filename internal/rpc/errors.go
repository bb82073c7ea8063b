package rpc

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBadRequest        = errors.New("bad request")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("service unavailable")
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is a non-2xx answer from the API. It unwraps to one of the sentinel errors above.
type StatusError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc: %d %s", e.StatusCode, e.kind)
	}
	return fmt.Sprintf("rpc: %d %s: %s", e.StatusCode, e.kind, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

func kindFor(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrPermissionDenied
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrUnavailable
	}
}
