package app

import (
	"context"
	"errors"
)

// DurableStore is the best-effort persistence boundary. The SessionStore
// writes through it fire-and-forget after each mutation; load paths are
// used at startup and by the sessions listing. Implementations must
// tolerate concurrent Save calls for the same session (last writer wins).
type DurableStore interface {
	Save(ctx context.Context, sess *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	LoadAll(ctx context.Context) ([]*Session, error)
	Delete(ctx context.Context, id string) error
}

// ErrSessionNotFound is returned by Load when no session exists for the id.
var ErrSessionNotFound = errors.New("session not found")
