// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// RedisLocker is a SET NX lock keyed per candidate. It serialises credit
// attempts inside one process; it does not make several replicas safe, since
// each replica keeps its own in-memory ledger. Run a single bot process.
// TryLock polls until the key is free, the wait budget runs out or ctx is done.
type RedisLocker struct {
	cli  *redis.Client
	wait time.Duration
	poll time.Duration
}

func NewLocker(c *Client, wait time.Duration) *RedisLocker {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{cli: c.cli, wait: wait, poll: 50 * time.Millisecond}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	var lastErr error
	for {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err == nil && ok {
			return token, nil
		}
		if err != nil {
			lastErr = err
		}
		if time.Now().After(deadline) {
			if lastErr != nil {
				return "", errors.Join(ErrLockNotAcquired, lastErr)
			}
			return "", ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return "", errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-time.After(l.poll): // wait before retrying
		}
	}
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases key only if it still holds token.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
