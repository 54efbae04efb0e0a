package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if this locker's token still
// owns it. Without the ownership check, a holder whose TTL expired could
// delete the lock a concurrent run has since acquired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on a Redis SET NX PX key.
//
// All instances pointing at the same Redis and lock name form one
// mutual-exclusion domain, which is what serializes imports across
// machines.
type RedisLocker struct {
	rdb  *redis.Client
	name string
	ttl  time.Duration

	mu    sync.Mutex
	token string // non-empty while we believe we hold the lock
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker for the named lock backed by the Redis
// instance at redisURL (e.g. "redis://localhost:6379/0").
func NewRedisLocker(redisURL, name string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if name == "" {
		return nil, fmt.Errorf("lock name must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	return &RedisLocker{rdb: redis.NewClient(opts), name: name, ttl: ttl}, nil
}

// Acquire takes the lock with SET NX PX. A fresh owner token is written
// as the value so Release can verify ownership.
func (l *RedisLocker) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.name, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %q: %w", l.name, err)
	}
	if !ok {
		return false, nil
	}
	l.token = token
	return true, nil
}

// Release deletes the lock key if this locker still owns it. Calling
// Release without a held lock is a no-op.
func (l *RedisLocker) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""

	if err := releaseScript.Run(ctx, l.rdb, []string{l.name}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %q: %w", l.name, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
