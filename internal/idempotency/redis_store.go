package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"

	keyPrefix = "idempotency:"
)

// Store persists the processing status of idempotency keys.
type Store interface {
	// Lock marks key as processing unless a status is already recorded.
	Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	Status(ctx context.Context, key string) (string, error)
	Complete(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RedisStore keeps one string key per idempotency key holding its status.
type RedisStore struct {
	client redis.Cmdable
	log    *slog.Logger
}

// NewRedisStore creates a Redis-backed Store.
func NewRedisStore(client redis.Cmdable, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
	}
}

func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, keyPrefix+key, StatusProcessing, lockTTL).Result()
	if err != nil {
		s.log.ErrorContext(ctx, "failed to acquire idempotency lock", slog.String("key", key), slog.Any("error", err))
		return false, err
	}

	return acquired, nil
}

func (s *RedisStore) Status(ctx context.Context, key string) (string, error) {
	status, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		s.log.ErrorContext(ctx, "failed to fetch idempotency status", slog.String("key", key), slog.Any("error", err))
		return "", err
	}
	return status, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, StatusCompleted, ttl).Err(); err != nil {
		s.log.ErrorContext(ctx, "failed to store idempotency record", slog.String("key", key), slog.Any("error", err))
		return err
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		s.log.ErrorContext(ctx, "failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}
