package health

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
	infraDB "github.com/avatarctic/offline-sync-engine/internal/infrastructure/db"
)

// checker adapts a probe func to ports.HealthChecker.
type checker struct {
	name  string
	probe func(ctx context.Context) error
}

func (c checker) Name() string                    { return c.name }
func (c checker) Check(ctx context.Context) error { return c.probe(ctx) }

// NewDBHealthChecker creates a health checker for the database holding the
// sync queue.
func NewDBHealthChecker(db *infraDB.Database) ports.HealthChecker {
	return checker{name: "database", probe: db.DB.PingContext}
}

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client redis.Cmdable) ports.HealthChecker {
	return checker{name: "redis", probe: func(ctx context.Context) error { return client.Ping(ctx).Err() }}
}

// NewCacheStoreHealthChecker reports whether partitions can be enumerated.
func NewCacheStoreHealthChecker(store ports.CacheStore) ports.HealthChecker {
	return checker{name: "cache_store", probe: func(ctx context.Context) error {
		_, err := store.Partitions(ctx)
		return err
	}}
}
