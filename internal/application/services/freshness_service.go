package services

import (
	"time"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
)

// FreshnessTracker decides whether a stored entry is still within its
// partition's max age. It holds no state besides the clock.
type FreshnessTracker struct {
	now func() time.Time
}

func NewFreshnessTracker(now func() time.Time) *FreshnessTracker {
	if now == nil {
		now = time.Now
	}
	return &FreshnessTracker{now: now}
}

// Age returns now - storedAt. A missing timestamp counts as the Unix epoch.
func (f *FreshnessTracker) Age(e *cache.Entry) time.Duration {
	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.UnixMilli(0)
	}
	return f.now().Sub(storedAt)
}

// IsFresh reports now - storedAt < maxAge, with no grace period.
func (f *FreshnessTracker) IsFresh(policy cache.Policy, e *cache.Entry) bool {
	if e == nil {
		return false
	}
	return f.Age(e) < policy.MaxAge
}
