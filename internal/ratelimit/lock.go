package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "tirta:lock:"

// Only the holder of the token may delete the key.
const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockNotConfigured = errors.New("lock client not configured")
	errEmptyLockKey      = errors.New("lock key is empty")
	errLockTTL           = errors.New("lock ttl must be positive")
)

// Locker is a SET NX based mutex shared by every engine instance.
type Locker struct {
	client redis.Cmdable
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return newLocker(client)
}

func newLocker(client redis.Cmdable) *Locker {
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

// TryLock returns the ownership token and whether the lock was taken.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotConfigured
	}
	if key == "" {
		return "", false, errEmptyLockKey
	}
	if ttl <= 0 {
		return "", false, errLockTTL
	}

	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, acquired, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{lockKeyPrefix + key}, token).Err()
}
