package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/offline-sync-engine/internal/application/services"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/test/mocks"
)

func fill(t *testing.T, store *mocks.MemoryCacheStore, name string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("http://app.test/page/%03d", i)
		store.Seed(name, cache.NewEntry(key, payload(200, "x"), newClock().Now()))
	}
}

func TestEviction_FullPartitionDropsOldestFifth(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemoryCacheStore()
	fill(t, store, "dynamic-v1", 101)
	part, err := store.Open(ctx, "dynamic-v1")
	require.NoError(t, err)

	metrics := newRecordingMetrics()
	svc := impl.NewEvictionService(quietLogger(), metrics)
	n, err := svc.EnsureCapacity(ctx, part, cache.Policy{MaxEntries: 100})
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, 81, store.Count("dynamic-v1"))
	require.Equal(t, 20, metrics.evicted["dynamic-v1"])

	keys, err := part.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, "http://app.test/page/020", keys[0])
	_, ok := store.Entry("dynamic-v1", "http://app.test/page/019")
	require.False(t, ok)
}

func TestEviction_ExactlyAtLimit(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemoryCacheStore()
	fill(t, store, "dynamic-v1", 100)
	part, _ := store.Open(ctx, "dynamic-v1")

	n, err := impl.NewEvictionService(nil, nil).EnsureCapacity(ctx, part, cache.Policy{MaxEntries: 100})
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, 80, store.Count("dynamic-v1"))
}

func TestEviction_BelowLimitAndUnbounded(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemoryCacheStore()
	fill(t, store, "dynamic-v1", 99)
	part, _ := store.Open(ctx, "dynamic-v1")
	svc := impl.NewEvictionService(nil, nil)

	n, err := svc.EnsureCapacity(ctx, part, cache.Policy{MaxEntries: 100})
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = svc.EnsureCapacity(ctx, part, cache.Policy{})
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 99, store.Count("dynamic-v1"))
}

func TestEviction_StoreFailure(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemoryCacheStore()
	part, _ := store.Open(ctx, "dynamic-v1")
	store.Fail = true

	_, err := impl.NewEvictionService(nil, nil).EnsureCapacity(ctx, part, cache.Policy{MaxEntries: 1})
	require.ErrorIs(t, err, mocks.ErrStoreDown)
}

func TestEviction_SmallLimitHoldsAcrossWrites(t *testing.T) {
	ctx := context.Background()
	svc := impl.NewEvictionService(nil, nil)
	for _, limit := range []int{1, 2, 3, 4, 5} {
		t.Run(fmt.Sprintf("max_%d", limit), func(t *testing.T) {
			store := mocks.NewMemoryCacheStore()
			part, err := store.Open(ctx, "dynamic-v1")
			require.NoError(t, err)
			peak := 0
			for i := 0; i < 50; i++ {
				_, err := svc.EnsureCapacity(ctx, part, cache.Policy{MaxEntries: limit})
				require.NoError(t, err)
				key := fmt.Sprintf("http://app.test/page/%03d", i)
				require.NoError(t, part.Put(ctx, key, cache.NewEntry(key, payload(200, "x"), newClock().Now())))
				peak = max(peak, store.Count("dynamic-v1"))
			}
			require.Equal(t, limit, peak)
		})
	}
}
