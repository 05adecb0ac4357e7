package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// evictionFraction of a full partition is dropped before the next insert.
const evictionFraction = 0.2

// EvictionService bounds size-limited partitions before writes.
type EvictionService struct {
	logger  *logrus.Logger
	metrics ports.EngineMetrics
}

func NewEvictionService(logger *logrus.Logger, metrics ports.EngineMetrics) *EvictionService {
	return &EvictionService{logger: logger, metrics: metricsOrNop(metrics)}
}

// EnsureCapacity removes the first floor(count*0.2) keys in enumeration order,
// and never fewer than one, when the partition holds at least MaxEntries
// entries. Enumeration order is
// first-insert order in both store backends; it approximates oldest-first and
// is not an LRU. Unbounded policies are a no-op.
func (s *EvictionService) EnsureCapacity(ctx context.Context, part ports.CachePartition, policy cache.Policy) (int, error) {
	if !policy.Bounded() {
		return 0, nil
	}
	keys, err := part.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keys of %s: %w", part.Name(), err)
	}
	count := len(keys)
	if count < policy.MaxEntries {
		return 0, nil
	}
	n := max(1, int(float64(count)*evictionFraction))
	evicted := 0
	for _, key := range keys[:n] {
		if _, err := part.Delete(ctx, key); err != nil {
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"partition": part.Name(), "key": key}).WithError(err).Warn("eviction: failed to delete entry")
			}
			continue
		}
		evicted++
	}
	s.metrics.Evicted(part.Name(), evicted)
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"partition": part.Name(), "count": count, "max_entries": policy.MaxEntries, "evicted": evicted}).Debug("eviction: partition trimmed")
	}
	return evicted, nil
}
