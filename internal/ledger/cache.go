package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// VerifyCache caches verification results in Redis. Lookups collapse
// through singleflight so a burst of checks for a hot certificate hits
// the ledger once. Entries are invalidated on revocation, so the TTL
// only bounds staleness for externally mutated rows.
type VerifyCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewVerifyCache constructs a VerifyCache.
func NewVerifyCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *VerifyCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &VerifyCache{client: client, ttl: ttl, logger: logger}
}

func verifyKey(id int64) string {
	return fmt.Sprintf("cert:%d:valid", id)
}

// Verify returns the cached result for id, loading through fn on miss.
func (c *VerifyCache) Verify(ctx context.Context, id int64, fn func(context.Context, int64) (bool, error)) (bool, error) {
	key := verifyKey(id)
	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return val == "1", nil
	}
	if err != redis.Nil && c.logger != nil {
		c.logger.Warn("verify cache read", slog.Int64("cert", id), slog.Any("error", err))
	}

	res := c.group.DoChan(key, func() (interface{}, error) {
		valid, err := fn(ctx, id)
		if err != nil {
			return false, err
		}
		stored := "0"
		if valid {
			stored = "1"
		}
		if err := c.client.Set(ctx, key, stored, c.ttl).Err(); err != nil && c.logger != nil {
			c.logger.Warn("verify cache write", slog.Int64("cert", id), slog.Any("error", err))
		}
		return valid, nil
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return false, r.Err
		}
		return r.Val.(bool), nil
	}
}

// Invalidate drops the cached entry for id.
func (c *VerifyCache) Invalidate(ctx context.Context, id int64) {
	if err := c.client.Del(ctx, verifyKey(id)).Err(); err != nil && c.logger != nil {
		c.logger.Warn("verify cache invalidate", slog.Int64("cert", id), slog.Any("error", err))
	}
}
