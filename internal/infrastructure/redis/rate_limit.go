package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// RateLimitCounter keeps fixed-window request counters in Redis.
type RateLimitCounter struct {
	r   redis.Cmdable
	now func() time.Time
}

var _ ports.RateLimitRepository = (*RateLimitCounter)(nil)

func NewRateLimitCounter(r redis.Cmdable) *RateLimitCounter {
	return &RateLimitCounter{r: r, now: time.Now}
}

func (c *RateLimitCounter) IncrementWindow(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	windowStart := c.now().Truncate(window)
	key := fmt.Sprintf("%s:%s:%d", keyPrefix, subject, windowStart.Unix())
	pipe := c.r.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, windowStart, err
	}
	return int(incr.Val()), windowStart, nil
}
