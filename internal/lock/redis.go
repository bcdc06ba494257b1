package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "lock:wallet:"
	redisRetryDelay  = 10 * time.Millisecond
	redisReleaseWait = 2 * time.Second
)

// releaseScript deletes the key only while it still carries our token, so an
// expired lease re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares locks between processes through Redis leases.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewRedis builds a Redis-backed locker. ttl is the lease length and timeout
// bounds each Acquire.
func NewRedis(client *redis.Client, ttl, timeout time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, timeout: timeout}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (Release, error) {
	keys = normalize(keys)
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	token := uuid.NewString()
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquireOne(ctx, redisKeyPrefix+key, token); err != nil {
			l.release(held, token)
			return nil, err
		}
		held = append(held, redisKeyPrefix+key)
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(held, token) }) }, nil
}

func (l *RedisLocker) acquireOne(ctx context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return waitErr(ctx)
			}
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(redisRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waitErr(ctx)
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) release(keys []string, token string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisReleaseWait)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		// best effort; the lease expires on its own
		releaseScript.Run(ctx, l.client, []string{keys[i]}, token) // nolint:errcheck
	}
}
