package health_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/db"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/health"
	"github.com/avatarctic/offline-sync-engine/test/mocks"
)

func TestDBHealthChecker(t *testing.T) {
	database, err := db.NewSQLiteDatabase(filepath.Join(t.TempDir(), "health.db"))
	require.NoError(t, err)

	c := health.NewDBHealthChecker(database)
	require.Equal(t, "database", c.Name())
	require.NoError(t, c.Check(context.Background()))

	require.NoError(t, database.Close())
	require.Error(t, c.Check(context.Background()))
}

func TestCacheStoreHealthChecker(t *testing.T) {
	store := mocks.NewMemoryCacheStore()
	c := health.NewCacheStoreHealthChecker(store)
	require.Equal(t, "cache_store", c.Name())
	require.NoError(t, c.Check(context.Background()))

	store.Fail = true
	require.ErrorIs(t, c.Check(context.Background()), mocks.ErrStoreDown)
}

func TestRedisHealthChecker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	c := health.NewRedisHealthChecker(client)
	require.Equal(t, "redis", c.Name())
	require.Error(t, c.Check(context.Background()))
}
