package ports

import (
	"context"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
)

// Notifier displays a notification to the learner (or their guardian).
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// ClientHub tracks the foreground clients the engine controls.
type ClientHub interface {
	// Claim takes control of every connected client and tells them which
	// epoch now serves them. Returns the number of clients claimed.
	Claim(ctx context.Context, epoch string) int
	Clients() int
}
