package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the lock only if it still carries our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RunLock makes dispatcher runs mutually exclusive across instances.
// The TTL bounds how long a crashed holder keeps the lock.
type RunLock struct {
	client lockClient
	key    string
	ttl    time.Duration
}

func NewRunLock(client lockClient, key string, ttl time.Duration) *RunLock {
	return &RunLock{client: client, key: key, ttl: ttl}
}

// Acquire claims the lock. ok is false when another run holds it.
func (l *RunLock) Acquire(ctx context.Context) (token string, ok bool, err error) {
	token = uuid.NewString()

	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire run lock %s: %w", l.key, err)
	}

	return token, ok, nil
}

// Release frees the lock if token still owns it.
func (l *RunLock) Release(ctx context.Context, token string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release run lock %s: %w", l.key, err)
	}

	return nil
}
