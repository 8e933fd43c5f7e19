package remote

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnreachable indicates the progress server could not be reached at
// all: DNS, connection refused, timeout. The update should be queued
// and retried later.
var ErrUnreachable = errors.New("progress server unreachable")

// ErrUnauthorized indicates the device token was rejected. Treated
// like unreachable by the sync engine, a fresh token makes the queued
// updates deliverable again.
var ErrUnauthorized = errors.New("device token rejected")

// ServerError is a non-conflict failure response after retries were
// exhausted.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("progress server returned status %d", e.StatusCode)
}

// ConflictError means the server already holds a newer position for
// the book. The server's timestamp lets the client update its view of
// the latest known remote state.
type ConflictError struct {
	ServerTimestamp time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("server has newer progress from %s", e.ServerTimestamp.Format(time.RFC3339))
}
