package ports

import (
	"context"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
)

// CacheStore persists entries in named partitions. Implementations serialize
// their own writes; callers do no locking.
type CacheStore interface {
	// Open returns the partition, creating it when missing.
	Open(ctx context.Context, name string) (CachePartition, error)
	// Partitions lists every existing partition name.
	Partitions(ctx context.Context) ([]string, error)
	// Drop deletes a partition and all its entries. ok=false if it did not exist.
	Drop(ctx context.Context, name string) (bool, error)
}

// CachePartition is a handle on one partition.
type CachePartition interface {
	Name() string
	// Get returns the entry for key. ok=false if not found.
	Get(ctx context.Context, key string) (*cache.Entry, bool, error)
	// Put inserts or overwrites; an overwrite keeps the key's enumeration position.
	Put(ctx context.Context, key string, entry *cache.Entry) error
	// Delete removes the key; absence is not an error.
	Delete(ctx context.Context, key string) (bool, error)
	// Keys enumerates keys in the store's natural (first insert) order.
	Keys(ctx context.Context) ([]string, error)
}
