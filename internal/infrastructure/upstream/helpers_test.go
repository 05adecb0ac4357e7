package upstream_test

import (
	"context"
	"net/http"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
)

// fetcherFunc adapts a probe function to ports.Fetcher.
type fetcherFunc func(ctx context.Context, req *http.Request) error

func (f fetcherFunc) Fetch(ctx context.Context, req *http.Request) (*cache.Payload, error) {
	if err := f(ctx, req); err != nil {
		return nil, err
	}
	return &cache.Payload{Status: http.StatusNoContent}, nil
}
