package ports

import (
	"context"
	"time"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/syncqueue"
)

// MutationRepository is the durable record store behind the sync queue.
type MutationRepository interface {
	Add(ctx context.Context, m *syncqueue.Mutation) error
	// GetAll returns every record in enqueue order.
	GetAll(ctx context.Context) ([]*syncqueue.Mutation, error)
	// DeleteMatching removes records identified by (url, enqueuedAt).
	DeleteMatching(ctx context.Context, url string, enqueuedAt time.Time) (int64, error)
}

// SyncQueueService owns pending mutations. Its in-memory mirror is never
// authoritative.
type SyncQueueService interface {
	Enqueue(ctx context.Context, m *syncqueue.Mutation) error
	ListAll(ctx context.Context) ([]*syncqueue.Mutation, error)
	Remove(ctx context.Context, match syncqueue.Predicate) (int, error)
	Reload(ctx context.Context) error
	Len() int
	// Snapshot copies the mirror.
	Snapshot() []*syncqueue.Mutation
}
