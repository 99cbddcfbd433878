package idempotency

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Cleaner deletes idempotency keys that lost their TTL.
type Cleaner struct {
	client redis.Cmdable
	log    *slog.Logger
}

func NewCleaner(client redis.Cmdable, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		client: client,
		log:    log,
	}
}

// Sweep scans idempotency keys once and returns how many were deleted.
func (c *Cleaner) Sweep(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scan idempotency keys: %w", err)
		}

		for _, key := range keys {
			ttl, err := c.client.TTL(ctx, key).Result()
			if err != nil {
				c.log.WarnContext(ctx, "failed to get key ttl", slog.String("key", key), slog.Any("error", err))
				continue
			}

			// -1 means the key exists without an expiry
			if ttl == -1 {
				if err := c.client.Del(ctx, key).Err(); err != nil {
					c.log.WarnContext(ctx, "failed to delete stale idempotency key", slog.String("key", key), slog.Any("error", err))
					continue
				}
				removed++
			}
		}

		if next == 0 {
			break
		}
		cursor = next
	}

	return removed, nil
}
