package failure_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/failure"
)

func TestIs_FollowsWrapChain(t *testing.T) {
	root := errors.New("connection refused")
	err := fmt.Errorf("dispatch: %w", failure.Network("fetch", root))

	require.True(t, failure.Is(err, failure.KindNetwork))
	require.False(t, failure.Is(err, failure.KindStorage))
	require.ErrorIs(t, err, root)
	require.Equal(t, "dispatch: fetch: network_failure: connection refused", err.Error())
}

func TestIs_PlainError(t *testing.T) {
	require.False(t, failure.Is(errors.New("x"), failure.KindReplay))
	require.False(t, failure.Is(nil, failure.KindReplay))
}
