package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

const defaultPollInterval = 50 * time.Millisecond

// RedisLocker holds keys with SET NX PX and releases them only when the
// stored token still matches, so an expired holder cannot free a successor.
// While a lease is held its ttl is extended every third of the ttl.
type RedisLocker struct {
	client       redis.UniversalClient
	release      *redis.Script
	extend       *redis.Script
	pollInterval time.Duration
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client:       client,
		release:      redis.NewScript(releaseScript),
		extend:       redis.NewScript(extendScript),
		pollInterval: defaultPollInterval,
	}
}

// TryLock makes one attempt and reports whether the key was taken.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrNotConfigured
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			lease := &redisLease{
				locker: l,
				key:    key,
				token:  token,
				ttl:    ttl,
				stop:   make(chan struct{}),
				done:   make(chan struct{}),
			}
			go lease.keepAlive()
			return lease, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
	ttl    time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (l *redisLease) keepAlive() {
	defer close(l.done)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			extended, err := l.locker.extend.Run(ctx, l.locker.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && extended == 0 {
				// Someone else owns the key now; Held reports it.
				return
			}
		}
	}
}

func (l *redisLease) Held(ctx context.Context) error {
	current, err := l.locker.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrLost
	}
	if err != nil {
		return err
	}
	if current != l.token {
		return ErrLost
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		err = l.locker.release.Run(ctx, l.locker.client, []string{l.key}, l.token).Err()
	})
	return err
}
