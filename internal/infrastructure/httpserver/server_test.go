package httpserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/offline-sync-engine/internal/application/engine"
	"github.com/avatarctic/offline-sync-engine/internal/application/services"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/clients"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/health"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/httpserver"
	"github.com/avatarctic/offline-sync-engine/test/mocks"
)

type serverFixture struct {
	store     *mocks.MemoryCacheStore
	fetcher   *mocks.FetcherMock
	hub       *clients.Hub
	lifecycle *services.LifecycleService
	server    *httpserver.Server
}

func newServerFixture(t *testing.T, tokens ports.TokenService, activate bool, opts ...func(*httpserver.ServerDeps)) *serverFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &serverFixture{store: mocks.NewMemoryCacheStore(), fetcher: &mocks.FetcherMock{}, hub: clients.NewHub(logger)}
	queue := services.NewSyncQueueService(&mocks.MutationRepositoryMock{}, &services.SyncQueueConfig{EnqueueAttempts: 1}, logger, nil)
	f.lifecycle = services.NewLifecycleService(services.LifecycleConfig{
		Epoch:   "v1",
		Dynamic: cache.Policy{MaxAge: time.Hour, MaxEntries: 100},
	}, services.LifecycleDeps{Store: f.store, Fetcher: f.fetcher, Queue: queue, Clients: f.hub, Logger: logger})
	classifier, err := services.NewClassifier(services.ClassifierConfig{ContentDirs: []string{"/content/"}})
	require.NoError(t, err)
	dispatcher := services.NewDispatcherService(services.DispatcherDeps{
		Store: f.store, Gate: f.lifecycle, Fetcher: f.fetcher, Queue: queue, Classifier: classifier, Logger: logger,
	})
	scheduler := services.NewNotificationScheduler(f.hub, logger)
	eng := engine.New(engine.Deps{
		Lifecycle:  f.lifecycle,
		Dispatcher: dispatcher,
		Replay:     services.NewReplayService(queue, f.fetcher, logger, nil),
		Messages:   services.NewMessageService(f.lifecycle, f.store, scheduler, logger, nil),
		Push:       services.NewPushService(f.hub, logger),
		Logger:     logger,
	})
	t.Cleanup(func() {
		scheduler.Stop()
		dispatcher.Wait()
		eng.Wait()
	})

	upstream, _ := url.Parse("http://origin.test")
	deps := httpserver.ServerDeps{
		Engine:         eng,
		Lifecycle:      f.lifecycle,
		Queue:          queue,
		Hub:            f.hub,
		Tokens:         tokens,
		HealthCheckers: []ports.HealthChecker{health.NewCacheStoreHealthChecker(f.store)},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.server = httpserver.NewServer(&httpserver.ServerConfig{Upstream: upstream}, logger, deps)
	if activate {
		require.NoError(t, f.lifecycle.Install(context.Background()))
		require.NoError(t, f.lifecycle.Activate(context.Background()))
	}
	return f
}

func (f *serverFixture) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_Health(t *testing.T) {
	f := newServerFixture(t, nil, true)
	rec := f.do(http.MethodGet, "/_engine/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "active", body["lifecycle"])
	require.Equal(t, "v1", body["epoch"])

	f.store.Fail = true
	rec = f.do(http.MethodGet, "/_engine/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_UnknownControlPathIsNotForwarded(t *testing.T) {
	f := newServerFixture(t, nil, true)
	for _, target := range []string{"/_engine", "/_engine/", "/_engine/nope", "/_engine/queue/extra"} {
		rec := f.do(http.MethodGet, target, "", nil)
		require.Equal(t, http.StatusNotFound, rec.Code, target)
	}
	rec := f.do(http.MethodPost, "/_engine/unknown", `{}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, f.fetcher.Calls())
}

type staticChecker struct {
	name string
	err  error
}

func (c staticChecker) Name() string                { return c.name }
func (c staticChecker) Check(context.Context) error { return c.err }

func TestServer_HealthOfflineUpstreamStillServes(t *testing.T) {
	f := newServerFixture(t, nil, true, func(d *httpserver.ServerDeps) {
		d.HealthCheckers = append(d.HealthCheckers, staticChecker{name: "upstream", err: mocks.ErrOffline})
	})
	rec := f.do(http.MethodGet, "/_engine/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "offline", body["status"])
	require.Equal(t, "unhealthy", body["dependencies"].(map[string]any)["upstream"])
	require.EqualValues(t, 0, body["pending_mutations"])
}

func TestServer_ControlChannelRateLimited(t *testing.T) {
	window := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := &mocks.RateLimitRepositoryMock{Now: func() time.Time { return window }}
	limiter := services.NewRateLimiterService(repo, &services.RateLimiterConfig{RequestsPerMinute: 1, BurstMultiplier: 1}, nil)
	f := newServerFixture(t, nil, true, func(d *httpserver.ServerDeps) { d.RateLimiter = limiter })

	rec := f.do(http.MethodGet, "/_engine/lifecycle", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = f.do(http.MethodGet, "/_engine/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, "health is not limited")

	rec = f.do(http.MethodGet, "/_engine/lifecycle", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestServer_InterceptWritesEngineHeaders(t *testing.T) {
	f := newServerFixture(t, nil, true)
	rec := f.do(http.MethodGet, "/api/lessons?level=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "http://origin.test/api/lessons?level=2", rec.Body.String())
	require.Equal(t, "network", rec.Header().Get("X-Engine-Source"))
	require.Equal(t, "api", rec.Header().Get("X-Engine-Class"))

	f.fetcher.SetOffline(true)
	rec = f.do(http.MethodGet, "/api/lessons?level=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cache", rec.Header().Get("X-Engine-Source"))
}

func TestServer_OfflineMutationIsQueued(t *testing.T) {
	f := newServerFixture(t, nil, true)
	f.fetcher.SetOffline(true)

	rec := f.do(http.MethodPost, "/api/progress", `{"stars":2}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "offline", rec.Header().Get("X-Engine-Source"))
	require.Equal(t, "Offline", decode(t, rec)["error"])

	rec = f.do(http.MethodGet, "/_engine/queue", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.EqualValues(t, 1, body["count"])
	require.Equal(t, true, body["from_disk"])

	f.fetcher.SetOffline(false)
	rec = f.do(http.MethodPost, "/_engine/sync", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode(t, rec)
	require.EqualValues(t, 1, report["succeeded"])
	require.EqualValues(t, 0, report["remaining"])
}

func TestServer_Messages(t *testing.T) {
	f := newServerFixture(t, nil, true)

	rec := f.do(http.MethodPost, "/_engine/messages", `{"type":"CACHE_PROGRESS","payload":{"userId":"kid-1","stars":1}}`, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPost, "/_engine/messages", `{"type":"GET_CACHE_STATUS"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)
	offline, ok := status["offline-v1"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 1, offline["entries"])

	rec = f.do(http.MethodPost, "/_engine/messages", `{"type":"CLEAR_CACHE"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decode(t, rec)["success"])

	rec = f.do(http.MethodPost, "/_engine/messages", `{"type":"PING"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/_engine/messages", `{"type":"SCHEDULE_NOTIFICATION","payload":{"delay":"x"}}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/_engine/messages", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PushReachesClients(t *testing.T) {
	f := newServerFixture(t, nil, true)
	_, events, cancel := f.hub.Subscribe()
	defer cancel()

	rec := f.do(http.MethodPost, "/_engine/push", `{"title":"New badge!"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "New badge!", decode(t, rec)["title"])

	select {
	case ev := <-events:
		require.Equal(t, clients.EventNotification, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no notification event")
	}
}

func TestServer_NotificationClick(t *testing.T) {
	f := newServerFixture(t, nil, true)

	rec := f.do(http.MethodPost, "/_engine/notifications/click", `{"action":"dismiss","data":{"url":"/stories"}}`, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPost, "/_engine/notifications/click", `{"action":"start-learning","data":{"url":"/stories"}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "/stories", decode(t, rec)["open"])

	rec = f.do(http.MethodPost, "/_engine/notifications/click", `{}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "/", decode(t, rec)["open"])
}

func TestServer_LifecycleEndpoints(t *testing.T) {
	f := newServerFixture(t, nil, false)

	rec := f.do(http.MethodPost, "/_engine/lifecycle/activate", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/_engine/lifecycle/install", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "waiting", decode(t, rec)["state"])

	rec = f.do(http.MethodPost, "/_engine/lifecycle/activate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "active", body["state"])
	require.Equal(t, []any{"static-v1", "dynamic-v1", "offline-v1"}, body["partitions"])
}

func TestServer_ControlChannelRequiresToken(t *testing.T) {
	tokens := services.NewTokenService("test-secret", time.Hour)
	f := newServerFixture(t, tokens, true)

	rec := f.do(http.MethodGet, "/_engine/lifecycle", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/_engine/lifecycle", "", http.Header{"Authorization": {"Bearer nope"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := tokens.Issue("tablet-1")
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/_engine/lifecycle", "", http.Header{"Authorization": {"Bearer " + tok.AccessToken}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/_engine/lifecycle?access_token="+tok.AccessToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/_engine/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/dashboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
