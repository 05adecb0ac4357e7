package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// PushService turns push payloads into shown notifications.
type PushService struct {
	notifier ports.Notifier
	logger   *logrus.Logger
}

func NewPushService(notifier ports.Notifier, logger *logrus.Logger) *PushService {
	return &PushService{notifier: notifier, logger: logger}
}

// HandlePush shows the notification described by payload. A malformed
// payload is logged and the defaults are shown instead.
func (s *PushService) HandlePush(ctx context.Context, payload []byte) (notification.Notification, error) {
	n, err := notification.FromPushPayload(payload)
	if err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("push: malformed payload, showing default notification")
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		if s.logger != nil {
			s.logger.WithField("tag", n.Tag).WithError(err).Error("push: failed to show notification")
		}
		return n, err
	}
	return n, nil
}
