package services

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/message"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// MessageService answers the foreground messaging protocol.
type MessageService struct {
	lifecycle ports.LifecycleService
	store     ports.CacheStore
	scheduler *NotificationScheduler
	logger    *logrus.Logger
	metrics   ports.EngineMetrics
	now       func() time.Time
}

var _ message.Handler = (*MessageService)(nil)

func NewMessageService(lifecycle ports.LifecycleService, store ports.CacheStore, scheduler *NotificationScheduler, logger *logrus.Logger, metrics ports.EngineMetrics) *MessageService {
	return &MessageService{
		lifecycle: lifecycle,
		store:     store,
		scheduler: scheduler,
		logger:    logger,
		metrics:   metricsOrNop(metrics),
		now:       time.Now,
	}
}

// Handle decodes an envelope and runs its command.
func (s *MessageService) Handle(ctx context.Context, env message.Envelope) (message.Reply, error) {
	cmd, err := message.Decode(env)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.WithField("type", cmd.Type()).Debug("message: received")
	}
	return cmd.Accept(ctx, s)
}

func (s *MessageService) SkipWaiting(ctx context.Context, _ message.SkipWaiting) (message.Reply, error) {
	return message.NoReply, s.lifecycle.SkipWaiting(ctx)
}

// CacheProgress stores the payload in the Offline partition. Storage failures
// are logged and swallowed.
func (s *MessageService) CacheProgress(ctx context.Context, cmd message.CacheProgress) (message.Reply, error) {
	parts, err := s.lifecycle.Await(ctx)
	if err != nil {
		return nil, err
	}
	part, err := s.store.Open(ctx, parts.Offline.Name())
	if err != nil {
		s.warn(err, "message: cannot open offline partition", logrus.Fields{"partition": parts.Offline.Name()})
		return message.NoReply, nil
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	payload := &cache.Payload{Status: http.StatusOK, Header: h, Body: []byte(cmd.Data)}
	key := cmd.Key()
	if err := part.Put(ctx, key, cache.NewEntry(key, payload, s.now())); err != nil {
		s.warn(err, "message: failed to store progress", logrus.Fields{"key": key})
	}
	return message.NoReply, nil
}

// GetCacheStatus reports entries and approximate size for every partition.
func (s *MessageService) GetCacheStatus(ctx context.Context, _ message.GetCacheStatus) (message.Reply, error) {
	status := message.CacheStatusReply{}
	names, err := s.store.Partitions(ctx)
	if err != nil {
		s.warn(err, "message: cannot list partitions", nil)
		return status, nil
	}
	for _, name := range names {
		part, err := s.store.Open(ctx, name)
		if err != nil {
			s.warn(err, "message: cannot open partition", logrus.Fields{"partition": name})
			continue
		}
		keys, err := part.Keys(ctx)
		if err != nil {
			s.warn(err, "message: cannot list keys", logrus.Fields{"partition": name})
			continue
		}
		st := cache.PartitionStatus{Entries: len(keys)}
		for _, key := range keys {
			if entry, ok, err := part.Get(ctx, key); err == nil && ok {
				st.ApproxSizeBytes += entry.Payload.Size()
			}
		}
		status[name] = st
	}
	return status, nil
}

// ClearCache drops every partition. Current-epoch partitions are recreated
// lazily by the next request.
func (s *MessageService) ClearCache(ctx context.Context, _ message.ClearCache) (message.Reply, error) {
	names, err := s.store.Partitions(ctx)
	if err != nil {
		s.warn(err, "message: cannot list partitions", nil)
		return message.ClearCacheReply{Success: false}, nil
	}
	ok := true
	for _, name := range names {
		if _, err := s.store.Drop(ctx, name); err != nil {
			s.warn(err, "message: failed to drop partition", logrus.Fields{"partition": name})
			ok = false
			continue
		}
		s.metrics.PartitionDropped(name)
	}
	return message.ClearCacheReply{Success: ok}, nil
}

func (s *MessageService) ScheduleNotification(ctx context.Context, cmd message.ScheduleNotification) (message.Reply, error) {
	n := notification.Defaults()
	if cmd.Title != "" {
		n.Title = cmd.Title
	}
	if cmd.Body != "" {
		n.Body = cmd.Body
	}
	if cmd.Tag != "" {
		n.Tag = cmd.Tag
	}
	if cmd.Data != nil {
		n.Data = cmd.Data
	}
	n.ShowAt = s.now().Add(cmd.Delay)
	id := s.scheduler.Schedule(n, cmd.Delay)
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"notification_id": id, "tag": n.Tag, "delay": cmd.Delay}).Info("message: notification scheduled")
	}
	return message.NoReply, nil
}

func (s *MessageService) warn(err error, msg string, fields logrus.Fields) {
	if s.logger == nil {
		return
	}
	s.logger.WithFields(fields).WithError(err).Warn(msg)
}
