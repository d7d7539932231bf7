// Package transport implements the cookie-backed HTTPS JSON transport used to
// talk to a network-management controller.
//
// Error types carry structured context (method, path, status) that helps
// callers decide how to handle failures and provides better diagnostics than
// plain string wrapping.
package transport

import (
	"errors"
	"fmt"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrNotConnected is returned when a request is attempted before any
	// successful connection has been established.
	ErrNotConnected = errors.New("not connected to controller")

	// ErrConnectFailed signals that every connect attempt was exhausted.
	ErrConnectFailed = errors.New("controller connection failed")
)

// ── Structured error types ───────────────────────────────────────────

// AuthError indicates the controller rejected or expired the session
// credentials. The session layer recovers from it with a single re-login.
type AuthError struct {
	Status int    // HTTP status (401/403), 0 when derived from the body
	Path   string // request path
	Msg    string // controller supplied message, if any
}

func (e *AuthError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("authentication required for %s: %s", e.Path, e.Msg)
	}
	return fmt.Sprintf("authentication required for %s (status %d)", e.Path, e.Status)
}

// APIError indicates the controller accepted the request at the HTTP layer
// but reported a business failure in its response envelope.
type APIError struct {
	RC   string // controller return code, e.g. "error"
	Msg  string // controller supplied message
	Path string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("controller api error on %s: rc=%s msg=%s", e.Path, e.RC, e.Msg)
}

// RequestError represents a transport level failure: connection refused,
// timeout, malformed response or an unexpected HTTP status.
type RequestError struct {
	Op     string // HTTP method
	Path   string
	Status int   // HTTP status, 0 for network failures
	Err    error // underlying error, may be nil for bare status failures
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.Path, e.Status)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ── Classification helpers ───────────────────────────────────────────

// IsAuthError reports whether err represents an expired or missing session.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
