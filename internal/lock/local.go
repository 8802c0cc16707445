package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LocalLocker serializes keys inside one process. The ttl is ignored because
// a holder cannot outlive the process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Lease, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.leave(key, s)
		return nil, ctx.Err()
	}
	return &localLease{locker: l, key: key, slot: s}, nil
}

func (l *LocalLocker) leave(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
}

type localLease struct {
	locker   *LocalLocker
	key      string
	slot     *slot
	released atomic.Bool
}

func (l *localLease) Held(context.Context) error {
	if l.released.Load() {
		return ErrLost
	}
	return nil
}

func (l *localLease) Release(context.Context) error {
	if l.released.Swap(true) {
		return nil
	}
	<-l.slot.ch
	l.locker.leave(l.key, l.slot)
	return nil
}
