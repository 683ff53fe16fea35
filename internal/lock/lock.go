// internal/lock/lock.go
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TickLock is a Redis-based lock around a dispatch pass. It only reduces
// redundant overlapping passes between instances; correctness against
// double-send comes from the store's conditional updates, not from this
// lock.
type TickLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Acquire attempts to take the lock. Returns nil (no error) when another
// instance already holds it.
func Acquire(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*TickLock, error) {
	token := uuid.New().String()

	acquired, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}

	return &TickLock{client: client, key: key, token: token, ttl: ttl}, nil
}

// Release deletes the lock only if this instance still owns it.
func (l *TickLock) Release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	return err
}

func (l *TickLock) Key() string   { return l.key }
func (l *TickLock) Token() string { return l.token }
