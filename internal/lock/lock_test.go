package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalLocker()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := locker.Acquire(context.Background(), "segment:1", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			_ = lease.Release(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Empty(t, locker.slots)
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	locker := NewLocalLocker()

	leaseA, err := locker.Acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)
	defer leaseA.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	leaseB, err := locker.Acquire(ctx, "b", time.Second)
	require.NoError(t, err)
	require.NoError(t, leaseB.Release(context.Background()))
}

func TestLocalLockerHonorsContext(t *testing.T) {
	locker := NewLocalLocker()

	lease, err := locker.Acquire(context.Background(), "segment:2", time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Held(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "segment:2", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, lease.Release(context.Background()))
	require.NoError(t, lease.Release(context.Background()))
	assert.ErrorIs(t, lease.Held(context.Background()), ErrLost)
	assert.Empty(t, locker.slots)
}
