package ports

import (
	"context"
	"time"
)

// RateLimitRepository provides atomic fixed-window counters. Implementations
// must be safe for concurrent use.
type RateLimitRepository interface {
	// IncrementWindow increments the counter of subject in the current window
	// and expires it after ttl. Returns the updated count and the window start.
	IncrementWindow(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (count int, windowStart time.Time, err error)
}

// RateLimiterService limits control channel calls per client.
type RateLimiterService interface {
	// Allow consumes one request unit for subject.
	// remaining: requests still allowed in the current window (>=0)
	// limit: configured requests per window
	// reset: when the current window ends
	Allow(ctx context.Context, subject string) (allowed bool, remaining int, limit int, reset time.Time, err error)
}
