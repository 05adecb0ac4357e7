package syncqueue

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// StoreName is the durable record store holding pending mutations.
const StoreName = "sync-queue"

// Mutation is a non-idempotent request that failed for lack of
// connectivity and waits for replay.
type Mutation struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	URL        string            `json:"url" db:"url"`
	Method     string            `json:"method" db:"method"`
	Headers    map[string]string `json:"headers" db:"-"`
	Body       []byte            `json:"body" db:"body"`
	EnqueuedAt time.Time         `json:"timestamp" db:"-"`
}

// NewMutation captures method, url, headers and body of an outgoing request.
// Multi-valued headers keep their first value.
func NewMutation(method, url string, header http.Header, body []byte, now time.Time) *Mutation {
	headers := make(map[string]string, len(header))
	for k, v := range header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return &Mutation{
		ID:         uuid.New(),
		URL:        url,
		Method:     method,
		Headers:    headers,
		Body:       body,
		EnqueuedAt: now.UTC().Truncate(time.Millisecond),
	}
}

// Matches reports whether m is identified by (url, enqueuedAt), the only
// identity guaranteed unique across backends.
func (m *Mutation) Matches(url string, enqueuedAt time.Time) bool {
	return m.URL == url && m.EnqueuedAt.UnixMilli() == enqueuedAt.UnixMilli()
}

// Header rebuilds an http.Header for replay.
func (m *Mutation) Header() http.Header {
	h := make(http.Header, len(m.Headers))
	for k, v := range m.Headers {
		h.Set(k, v)
	}
	return h
}

// Predicate selects queued mutations for removal.
type Predicate func(*Mutation) bool

// ByIdentity matches the record enqueued for url at enqueuedAt.
func ByIdentity(url string, enqueuedAt time.Time) Predicate {
	return func(m *Mutation) bool { return m.Matches(url, enqueuedAt) }
}
