package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/failure"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/syncqueue"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// SyncQueueService fronts the durable mutation store. The mirror is a
// read-through copy rebuilt by Reload; the repository stays the only source
// of truth.
type SyncQueueService struct {
	repo     ports.MutationRepository
	logger   *logrus.Logger
	metrics  ports.EngineMetrics
	attempts int
	backoff  time.Duration

	enqueueMu sync.Mutex

	mu     sync.RWMutex
	mirror []*syncqueue.Mutation
}

// SyncQueueConfig groups the enqueue retry settings.
type SyncQueueConfig struct {
	EnqueueAttempts int
	EnqueueBackoff  time.Duration
}

func NewSyncQueueService(repo ports.MutationRepository, cfg *SyncQueueConfig, logger *logrus.Logger, metrics ports.EngineMetrics) *SyncQueueService {
	attempts := 3
	backoff := 50 * time.Millisecond
	if cfg != nil {
		if cfg.EnqueueAttempts > 0 {
			attempts = cfg.EnqueueAttempts
		}
		if cfg.EnqueueBackoff >= 0 {
			backoff = cfg.EnqueueBackoff
		}
	}
	return &SyncQueueService{repo: repo, logger: logger, metrics: metricsOrNop(metrics), attempts: attempts, backoff: backoff}
}

// Enqueue persists m, retrying the write before giving up. It returns only
// once the record is durable or every attempt has failed. A record whose
// (url, enqueuedAt) is already pending is moved forward one millisecond at a
// time until its identity is unique.
func (s *SyncQueueService) Enqueue(ctx context.Context, m *syncqueue.Mutation) error {
	s.enqueueMu.Lock()
	defer s.enqueueMu.Unlock()

	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	s.makeIdentityUnique(ctx, m)

	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = s.repo.Add(ctx, m); err == nil {
			break
		}
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"url": m.URL, "method": m.Method, "attempt": attempt}).WithError(err).Warn("sync queue: enqueue failed")
		}
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return failure.Storage("enqueue", ctx.Err())
		case <-time.After(s.backoff):
		}
	}
	if err != nil {
		return failure.Storage("enqueue", err)
	}

	s.mu.Lock()
	s.mirror = append(s.mirror, m)
	n := len(s.mirror)
	s.mu.Unlock()
	s.metrics.QueueLength(n)

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"mutation_id": m.ID, "url": m.URL, "method": m.Method}).Info("sync queue: mutation enqueued")
	}
	return nil
}

func (s *SyncQueueService) makeIdentityUnique(ctx context.Context, m *syncqueue.Mutation) {
	pending, err := s.repo.GetAll(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("url", m.URL).WithError(err).Warn("sync queue: store unreadable, checking identity against mirror")
		}
		pending = s.Snapshot()
	}
	taken := make(map[int64]struct{})
	for _, p := range pending {
		if p.URL == m.URL {
			taken[p.EnqueuedAt.UnixMilli()] = struct{}{}
		}
	}
	for {
		if _, ok := taken[m.EnqueuedAt.UnixMilli()]; !ok {
			return
		}
		m.EnqueuedAt = m.EnqueuedAt.Add(time.Millisecond)
	}
}

// ListAll reads every pending record from durable storage and refreshes the
// mirror with the result.
func (s *SyncQueueService) ListAll(ctx context.Context) ([]*syncqueue.Mutation, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, failure.Storage("list sync queue", err)
	}
	s.replaceMirror(all)
	return all, nil
}

// Remove deletes every record matching the predicate. Deletion goes through
// the (url, enqueuedAt) identity of each match.
func (s *SyncQueueService) Remove(ctx context.Context, match syncqueue.Predicate) (int, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return 0, failure.Storage("remove from sync queue", err)
	}
	removed := 0
	for _, m := range all {
		if !match(m) {
			continue
		}
		n, err := s.repo.DeleteMatching(ctx, m.URL, m.EnqueuedAt)
		if err != nil {
			return removed, failure.Storage("remove from sync queue", fmt.Errorf("delete %s: %w", m.ID, err))
		}
		removed += int(n)
	}
	if removed > 0 {
		s.mu.Lock()
		kept := s.mirror[:0]
		for _, m := range s.mirror {
			if !match(m) {
				kept = append(kept, m)
			}
		}
		s.mirror = kept
		n := len(s.mirror)
		s.mu.Unlock()
		s.metrics.QueueLength(n)
	}
	return removed, nil
}

// Reload discards the mirror and rebuilds it from durable storage.
func (s *SyncQueueService) Reload(ctx context.Context) error {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("sync queue: failed to rebuild mirror")
		}
		return failure.Storage("reload sync queue", err)
	}
	s.replaceMirror(all)
	if s.logger != nil {
		s.logger.WithField("pending", len(all)).Info("sync queue: mirror rebuilt from durable store")
	}
	return nil
}

// Len reports the mirror size; it may lag the store between reloads.
func (s *SyncQueueService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mirror)
}

// Snapshot copies the mirror.
func (s *SyncQueueService) Snapshot() []*syncqueue.Mutation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*syncqueue.Mutation, len(s.mirror))
	copy(out, s.mirror)
	return out
}

func (s *SyncQueueService) replaceMirror(all []*syncqueue.Mutation) {
	s.mu.Lock()
	s.mirror = append([]*syncqueue.Mutation(nil), all...)
	n := len(s.mirror)
	s.mu.Unlock()
	s.metrics.QueueLength(n)
}
