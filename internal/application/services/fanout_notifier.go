package services

import (
	"context"
	"errors"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// FanoutNotifier delivers to every notifier and joins their errors.
type FanoutNotifier []ports.Notifier

func (f FanoutNotifier) Notify(ctx context.Context, n notification.Notification) error {
	var errs []error
	for _, notifier := range f {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
