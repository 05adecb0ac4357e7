package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// NotificationScheduler shows local notifications after a delay.
type NotificationScheduler struct {
	notifier ports.Notifier
	logger   *logrus.Logger

	mu      sync.Mutex
	timers  map[uuid.UUID]*time.Timer
	stopped bool
	running sync.WaitGroup
}

func NewNotificationScheduler(notifier ports.Notifier, logger *logrus.Logger) *NotificationScheduler {
	return &NotificationScheduler{notifier: notifier, logger: logger, timers: make(map[uuid.UUID]*time.Timer)}
}

// Schedule arranges for n to be shown after delay and returns its id.
func (s *NotificationScheduler) Schedule(n notification.Notification, delay time.Duration) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return id
	}
	s.running.Add(1)
	s.timers[id] = time.AfterFunc(delay, func() {
		defer s.running.Done()
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		if err := s.notifier.Notify(context.Background(), n); err != nil && s.logger != nil {
			s.logger.WithFields(logrus.Fields{"tag": n.Tag, "notification_id": id}).WithError(err).Warn("notification: delivery failed")
		}
	})
	return id
}

// Pending reports how many notifications are still waiting for their timer.
func (s *NotificationScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels pending notifications and waits for ones already firing.
func (s *NotificationScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		if t.Stop() {
			s.running.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.running.Wait()
}
