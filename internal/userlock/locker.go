// Package userlock provides per-user mutual exclusion for balance-changing operations.
package userlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	userLockKeyPattern = "user:lock:%d"
	DefaultTTL         = 10 * time.Second
)

// ErrLocked indicates that a concurrent operation already holds the user's lock.
var ErrLocked = errors.New("user is locked, try again later")

// Locker acquires an exclusive lock for a user. The returned release func is safe to call once.
type Locker interface {
	Lock(ctx context.Context, userID int64) (release func(), err error)
}

// releaseScript deletes the key only when it still carries our token, so an expired
// lock re-acquired by someone else is never released by us.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX and a TTL.
type RedisLocker struct {
	client goredis.UniversalClient
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisLocker creates a Redis-backed locker. A non-positive ttl falls back to DefaultTTL.
func NewRedisLocker(client goredis.UniversalClient, ttl time.Duration, log *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}

	return &RedisLocker{client: client, ttl: ttl, log: log}
}

func (l *RedisLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	key := fmt.Sprintf(userLockKeyPattern, userID)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		l.log.Error("failed to acquire user lock", slog.Int64("telegram_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("acquire user lock: %w", err)
	}
	if !acquired {
		l.log.Debug("user lock already held", slog.Int64("telegram_id", userID))
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be done; release on a short independent deadline.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.log.Error("failed to release user lock", slog.Int64("telegram_id", userID), slog.Any("error", err))
			}
		})
	}, nil
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu     sync.Mutex
	locked map[int64]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locked: make(map[int64]struct{})}
}

func (l *MemoryLocker) Lock(_ context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.locked[userID]; held {
		return nil, ErrLocked
	}
	l.locked[userID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.locked, userID)
			l.mu.Unlock()
		})
	}, nil
}
