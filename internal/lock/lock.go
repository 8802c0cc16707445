// Package lock serializes work on a shared key, such as the membership refresh
// of a single segment, across goroutines and across processes.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConfigured = errors.New("lock client not configured")
	ErrLost          = errors.New("lock_lost")
)

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	// Held returns ErrLost once the key is no longer owned by this lease.
	Held(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker grants exclusive ownership of a key until released. Acquire blocks
// until the key is free or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
