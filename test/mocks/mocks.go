package mocks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/syncqueue"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// ErrOffline is what FetcherMock returns when Offline is set.
var ErrOffline = errors.New("network unreachable")

// FetcherMock is a lightweight mock for ports.Fetcher. With no FetchFn it
// answers 200 with the request URL as body, or ErrOffline when Offline is set.
type FetcherMock struct {
	FetchFn func(ctx context.Context, req *http.Request) (*cache.Payload, error)

	mu      sync.Mutex
	Offline bool
	calls   []string
}

func (m *FetcherMock) Fetch(ctx context.Context, req *http.Request) (*cache.Payload, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req.Method+" "+req.URL.String())
	offline := m.Offline
	m.mu.Unlock()
	if m.FetchFn != nil {
		return m.FetchFn(ctx, req)
	}
	if offline {
		return nil, ErrOffline
	}
	return &cache.Payload{Status: http.StatusOK, Header: http.Header{}, Body: []byte(req.URL.String())}, nil
}

func (m *FetcherMock) SetOffline(offline bool) {
	m.mu.Lock()
	m.Offline = offline
	m.mu.Unlock()
}

// Calls returns "METHOD url" for every fetch so far.
func (m *FetcherMock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MutationRepositoryMock keeps records in memory unless a Fn overrides it.
type MutationRepositoryMock struct {
	AddFn            func(ctx context.Context, m *syncqueue.Mutation) error
	GetAllFn         func(ctx context.Context) ([]*syncqueue.Mutation, error)
	DeleteMatchingFn func(ctx context.Context, url string, enqueuedAt time.Time) (int64, error)

	mu      sync.Mutex
	records []*syncqueue.Mutation
}

func (m *MutationRepositoryMock) Add(ctx context.Context, mu *syncqueue.Mutation) error {
	if m.AddFn != nil {
		if err := m.AddFn(ctx, mu); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.records = append(m.records, mu)
	m.mu.Unlock()
	return nil
}

func (m *MutationRepositoryMock) GetAll(ctx context.Context) ([]*syncqueue.Mutation, error) {
	if m.GetAllFn != nil {
		return m.GetAllFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*syncqueue.Mutation(nil), m.records...), nil
}

func (m *MutationRepositoryMock) DeleteMatching(ctx context.Context, url string, enqueuedAt time.Time) (int64, error) {
	if m.DeleteMatchingFn != nil {
		return m.DeleteMatchingFn(ctx, url, enqueuedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.records[:0]
	for _, r := range m.records {
		if r.Matches(url, enqueuedAt) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return n, nil
}

// NotifierMock records every notification it is asked to show.
type NotifierMock struct {
	NotifyFn func(ctx context.Context, n notification.Notification) error

	mu    sync.Mutex
	shown []notification.Notification
}

func (m *NotifierMock) Notify(ctx context.Context, n notification.Notification) error {
	m.mu.Lock()
	m.shown = append(m.shown, n)
	m.mu.Unlock()
	if m.NotifyFn != nil {
		return m.NotifyFn(ctx, n)
	}
	return nil
}

func (m *NotifierMock) Shown() []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Notification(nil), m.shown...)
}

// ClientHubMock counts claims.
type ClientHubMock struct {
	ClaimFn func(ctx context.Context, epoch string) int

	mu     sync.Mutex
	claims []string
}

func (m *ClientHubMock) Claim(ctx context.Context, epoch string) int {
	m.mu.Lock()
	m.claims = append(m.claims, epoch)
	m.mu.Unlock()
	if m.ClaimFn != nil {
		return m.ClaimFn(ctx, epoch)
	}
	return 0
}

func (m *ClientHubMock) Clients() int { return 0 }

func (m *ClientHubMock) Claims() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.claims...)
}

// RateLimitRepositoryMock keeps fixed-window counters in memory. Windows
// follow Now, or the wall clock when Now is nil.
type RateLimitRepositoryMock struct {
	IncrementWindowFn func(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error)
	Now               func() time.Time

	mu     sync.Mutex
	counts map[string]int
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	if m.IncrementWindowFn != nil {
		return m.IncrementWindowFn(ctx, subject, window, keyPrefix, ttl)
	}
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	start := now.Truncate(window)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	key := fmt.Sprintf("%s:%s:%d", keyPrefix, subject, start.Unix())
	m.counts[key]++
	return m.counts[key], start, nil
}

var (
	_ ports.Fetcher             = (*FetcherMock)(nil)
	_ ports.MutationRepository  = (*MutationRepositoryMock)(nil)
	_ ports.Notifier            = (*NotifierMock)(nil)
	_ ports.ClientHub           = (*ClientHubMock)(nil)
	_ ports.RateLimitRepository = (*RateLimitRepositoryMock)(nil)
	_ ports.CacheStore          = (*MemoryCacheStore)(nil)
)
