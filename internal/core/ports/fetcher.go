package ports

import (
	"context"
	"net/http"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
)

// Fetcher performs network I/O. A returned error means the round trip did not
// complete (a NetworkFailure); any HTTP status is a completed round trip.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*cache.Payload, error)
}
