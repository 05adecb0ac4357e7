package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/failure"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/syncqueue"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// ReplayService drains the sync queue on connectivity/wake signals. A record
// is removed only after its replay returned a 2xx; everything else stays for
// the next wake, with no backoff and no retry cap.
type ReplayService struct {
	queue   ports.SyncQueueService
	fetcher ports.Fetcher
	logger  *logrus.Logger
	metrics ports.EngineMetrics

	drains singleflight.Group
}

func NewReplayService(queue ports.SyncQueueService, fetcher ports.Fetcher, logger *logrus.Logger, metrics ports.EngineMetrics) *ReplayService {
	return &ReplayService{queue: queue, fetcher: fetcher, logger: logger, metrics: metricsOrNop(metrics)}
}

// Replay re-issues every queued mutation in enqueue order. Overlapping wake
// signals share one drain.
func (s *ReplayService) Replay(ctx context.Context) (ports.ReplayReport, error) {
	v, err, _ := s.drains.Do("drain", func() (any, error) {
		return s.drain(ctx)
	})
	if err != nil {
		return ports.ReplayReport{}, err
	}
	return v.(ports.ReplayReport), nil
}

func (s *ReplayService) drain(ctx context.Context) (ports.ReplayReport, error) {
	var report ports.ReplayReport
	pending, err := s.queue.ListAll(ctx)
	if err != nil {
		return report, err
	}
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			break
		}
		report.Attempted++
		if err := s.send(ctx, m); err != nil {
			report.Failed++
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"mutation_id": m.ID, "url": m.URL, "method": m.Method}).WithError(err).Warn("replay: mutation kept for next wake")
			}
			continue
		}
		removed, err := s.queue.Remove(ctx, syncqueue.ByIdentity(m.URL, m.EnqueuedAt))
		if err != nil {
			// Delivered but still queued: it will be sent again (at-least-once).
			report.Failed++
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"mutation_id": m.ID, "url": m.URL}).WithError(err).Error("replay: delivered mutation could not be removed")
			}
			continue
		}
		report.Succeeded++
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"mutation_id": m.ID, "url": m.URL, "method": m.Method, "removed": removed}).Info("replay: mutation delivered")
		}
	}
	report.Remaining = s.queue.Len()
	s.metrics.Replayed(report.Succeeded, report.Failed)
	return report, nil
}

func (s *ReplayService) send(ctx context.Context, m *syncqueue.Mutation) error {
	req, err := http.NewRequestWithContext(ctx, m.Method, m.URL, bytes.NewReader(m.Body))
	if err != nil {
		return failure.Replay("build request", err)
	}
	req.Header = m.Header()
	payload, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return failure.Replay("send", err)
	}
	if !payload.OK() {
		return failure.Replay("send", fmt.Errorf("upstream answered %d", payload.Status))
	}
	return nil
}
