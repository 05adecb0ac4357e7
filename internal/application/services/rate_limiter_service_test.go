package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/offline-sync-engine/internal/application/services"
	"github.com/avatarctic/offline-sync-engine/test/mocks"
)

func TestRateLimiter_AllowsBurstThenDenies(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 10, 0, time.UTC)
	repo := &mocks.RateLimitRepositoryMock{Now: func() time.Time { return now }}
	svc := impl.NewRateLimiterService(repo, &impl.RateLimiterConfig{RequestsPerMinute: 2, BurstMultiplier: 1.5}, quietLogger())
	ctx := context.Background()

	for i, wantRemaining := range []int{2, 1, 0} {
		allowed, remaining, limit, reset, err := svc.Allow(ctx, "client:a")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
		assert.Equal(t, wantRemaining, remaining)
		assert.Equal(t, 2, limit)
		assert.Equal(t, time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC), reset)
	}

	allowed, remaining, _, _, err := svc.Allow(ctx, "client:a")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)

	// other clients have their own window
	allowed, _, _, _, err = svc.Allow(ctx, "client:b")
	require.NoError(t, err)
	assert.True(t, allowed)

	now = now.Add(time.Minute)
	allowed, _, _, _, err = svc.Allow(ctx, "client:a")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_Defaults(t *testing.T) {
	var gotPrefix string
	var gotWindow, gotTTL time.Duration
	repo := &mocks.RateLimitRepositoryMock{
		IncrementWindowFn: func(_ context.Context, _ string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
			gotPrefix, gotWindow, gotTTL = keyPrefix, window, ttl
			return 1, time.Time{}, nil
		},
	}
	svc := impl.NewRateLimiterService(repo, nil, nil)

	allowed, remaining, limit, _, err := svc.Allow(context.Background(), "client:a")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 120, limit)
	assert.Equal(t, 239, remaining)
	assert.Equal(t, "ratelimit:client", gotPrefix)
	assert.Equal(t, time.Minute, gotWindow)
	assert.Equal(t, 2*time.Minute, gotTTL)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	boom := errors.New("redis down")
	repo := &mocks.RateLimitRepositoryMock{
		IncrementWindowFn: func(context.Context, string, time.Duration, string, time.Duration) (int, time.Time, error) {
			return 0, time.Time{}, boom
		},
	}
	svc := impl.NewRateLimiterService(repo, &impl.RateLimiterConfig{RequestsPerMinute: 1}, quietLogger())

	allowed, _, _, _, err := svc.Allow(context.Background(), "client:a")
	assert.ErrorIs(t, err, boom)
	assert.True(t, allowed)
}
