package storage

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("session store is closed")

// SessionStore persists per-session key/value slots.
//
// Implementations are last-writer-wins per slot: two concurrent requests
// for the same session that read-modify-write one slot may lose updates.
type SessionStore interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, bool, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID, key string) error
	Close() error
}

// Sweeper drops slots that have not been written since a cutoff.
type Sweeper interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
