// Package session persists signed-in sessions and tracks the live ones.
//
// A Store keeps serialized principals keyed by session ID with an expiry.
// The Manager sits on top of it: it issues session IDs, starts the
// auth.Session for each sign-in, and deletes the stored record when the
// session signs out or expires.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load for a missing or expired session.
var ErrNotFound = errors.New("session not found")

// Store defines the interface for session persistence backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a session record, overwriting any existing one.
	Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error

	// Load retrieves a record. Returns ErrNotFound if it does not exist or
	// has expired.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, sessionID string) error

	// Touch updates the expiration time without loading the record.
	Touch(ctx context.Context, sessionID string, expiresAt time.Time) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
type ErrStoreClosed struct{}

func (e ErrStoreClosed) Error() string {
	return "session store is closed"
}
