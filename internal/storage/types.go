package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values: "sqlite" (default), "mysql", "file", "memory".
type Config struct {
	Driver      string
	Path        string        // sqlite, file
	DSN         string        // mysql
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the reminder scheduler.
//
// Implementations only need atomic upsert/delete of a single row; there is at
// most one writer by construction.
type Store interface {
	// NextFire returns the persisted fire time. ok is false when nothing is pending.
	NextFire(ctx context.Context) (at time.Time, ok bool, err error)
	PutNextFire(ctx context.Context, at time.Time) error
	ClearNextFire(ctx context.Context) error
	Close() error
}
