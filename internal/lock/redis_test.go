package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client)
	locker.pollInterval = 5 * time.Millisecond
	return locker, mr
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "segment:refresh:1", time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists("segment:refresh:1"))
	assert.Equal(t, time.Minute, mr.TTL("segment:refresh:1"))
	require.NoError(t, lease.Held(ctx))

	_, ok, err := locker.TryLock(ctx, "segment:refresh:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("segment:refresh:1"))

	_, ok, err = locker.TryLock(ctx, "segment:refresh:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerWaitsForHolder(t *testing.T) {
	locker, _ := newTestRedisLocker(t)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "segment:refresh:2", time.Minute)
	require.NoError(t, err)

	acquired := make(chan Lease, 1)
	go func() {
		lease, err := locker.Acquire(ctx, "segment:refresh:2", time.Minute)
		if assert.NoError(t, err) {
			acquired <- lease
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Release(ctx))

	select {
	case second := <-acquired:
		require.NoError(t, second.Held(ctx))
		require.NoError(t, second.Release(ctx))
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the key")
	}
}

func TestRedisLockerAcquireHonorsContext(t *testing.T) {
	locker, _ := newTestRedisLocker(t)

	lease, err := locker.Acquire(context.Background(), "segment:refresh:3", time.Minute)
	require.NoError(t, err)
	defer lease.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "segment:refresh:3", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLeaseDoesNotReleaseSuccessor(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "segment:refresh:4", time.Minute)
	require.NoError(t, err)

	// The key expired and another process took it.
	require.NoError(t, mr.Set("segment:refresh:4", "other-token"))

	assert.ErrorIs(t, lease.Held(ctx), ErrLost)
	require.NoError(t, lease.Release(ctx))

	got, err := mr.Get("segment:refresh:4")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestRedisLeaseReportsExpiry(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "segment:refresh:5", time.Minute)
	require.NoError(t, err)
	defer lease.Release(ctx)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, lease.Held(ctx), ErrLost)
}

func TestRedisLeaseExtendsTTLWhileHeld(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	ttl := 90 * time.Millisecond
	lease, err := locker.Acquire(ctx, "segment:refresh:6", ttl)
	require.NoError(t, err)
	defer lease.Release(ctx)

	mr.SetTTL("segment:refresh:6", time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL("segment:refresh:6") == ttl
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, lease.Held(ctx))
}

func TestRedisLockerRequiresClient(t *testing.T) {
	var locker *RedisLocker
	_, _, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
