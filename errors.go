package ryazhenka

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ============================================================================
// Error Taxonomy
// ============================================================================

// ErrorKind classifies a NetworkError.
type ErrorKind string

const (
	// KindTimeout means the per-call deadline elapsed before a response.
	KindTimeout ErrorKind = "timeout"
	// KindConnectionFailed means the request never reached the service.
	KindConnectionFailed ErrorKind = "connection_failed"
	// KindServerRejected means the service answered with a non-success status.
	KindServerRejected ErrorKind = "server_rejected"
	// KindMalformedResponse means the response body could not be decoded.
	KindMalformedResponse ErrorKind = "malformed_response"
)

// NetworkError is the single error type surfaced by Client calls. Callers
// branch on Kind; Status and API carry detail for server rejections.
type NetworkError struct {
	Kind   ErrorKind
	Op     string // the endpoint, e.g. "register"
	Status int    // HTTP status for KindServerRejected
	API    *APIError
	Err    error
}

func (e *NetworkError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("%s: request timed out", e.Op)
	case KindConnectionFailed:
		return fmt.Sprintf("%s: connection failed: %v", e.Op, e.Err)
	case KindServerRejected:
		if e.API != nil && e.API.Message != "" {
			return fmt.Sprintf("%s: server rejected (%d): %s", e.Op, e.Status, e.API.Message)
		}
		return fmt.Sprintf("%s: server rejected (%d)", e.Op, e.Status)
	case KindMalformedResponse:
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the error was a deadline expiry.
func (e *NetworkError) Timeout() bool { return e.Kind == KindTimeout }

// ErrNotAuthenticated is returned when an operation requires an active
// Session and none exists.
var ErrNotAuthenticated = errors.New("not logged in")

// classifyTransportErr folds a transport-level failure into Timeout or
// ConnectionFailed.
func classifyTransportErr(op string, err error) *NetworkError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Kind: KindTimeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &NetworkError{Kind: KindTimeout, Op: op, Err: err}
	}
	return &NetworkError{Kind: KindConnectionFailed, Op: op, Err: err}
}

// StatusText maps any engine or client error to a short human-readable
// status line, distinguishing connection problems from server errors from
// missing authentication.
func StatusText(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, ErrNotAuthenticated) {
		return "not logged in"
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		switch ne.Kind {
		case KindTimeout, KindConnectionFailed:
			return "no connection"
		case KindServerRejected, KindMalformedResponse:
			return "server error"
		}
	}
	return "error"
}
