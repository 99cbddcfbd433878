package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner removes sliding-window keys that no longer hold recent requests.
type Cleaner struct {
	client redis.Cmdable
	log    *slog.Logger
	maxAge time.Duration
}

// NewCleaner constructs a Cleaner that drops entries older than maxAge.
func NewCleaner(client redis.Cmdable, log *slog.Logger, maxAge time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}

	return &Cleaner{
		client: client,
		log:    log,
		maxAge: maxAge,
	}
}

// Sweep scans all limiter keys once and deletes the ones left empty.
// It returns the number of deleted keys.
func (c *Cleaner) Sweep(ctx context.Context) (int, error) {
	const scanCount = 100

	cutoff := time.Now().Add(-c.maxAge).UnixMilli()
	var cursor uint64
	cleaned := 0

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, keyPrefix+"*", scanCount).Result()
		if err != nil {
			return cleaned, fmt.Errorf("scan rate limit keys: %w", err)
		}

		for _, key := range keys {
			pipe := c.client.TxPipeline()
			pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
			cardCmd := pipe.ZCard(ctx, key)
			if _, err := pipe.Exec(ctx); err != nil {
				c.log.WarnContext(ctx, "cleanup pipeline failed", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if cardCmd.Val() == 0 {
				if err := c.client.Del(ctx, key).Err(); err != nil {
					c.log.WarnContext(ctx, "failed to delete empty rate limit key", slog.String("key", key), slog.Any("error", err))
					continue
				}
				cleaned++
			}
		}

		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}

	if cleaned > 0 {
		c.log.InfoContext(ctx, "rate limit keys cleaned", slog.Int("keys_removed", cleaned))
	}
	return cleaned, nil
}
