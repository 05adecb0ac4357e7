package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/offline-sync-engine/internal/application/services"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/message"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
	"github.com/avatarctic/offline-sync-engine/test/mocks"
)

type messageFixture struct {
	store     *mocks.MemoryCacheStore
	notifier  *mocks.NotifierMock
	scheduler *impl.NotificationScheduler
	lifecycle *impl.LifecycleService
	svc       *impl.MessageService
}

func newMessageFixture(t *testing.T, skipWaiting bool) *messageFixture {
	t.Helper()
	f := &messageFixture{store: mocks.NewMemoryCacheStore(), notifier: &mocks.NotifierMock{}}
	f.scheduler = impl.NewNotificationScheduler(f.notifier, quietLogger())
	t.Cleanup(f.scheduler.Stop)
	parts := partitionsFor("v1")
	f.lifecycle = impl.NewLifecycleService(impl.LifecycleConfig{
		Epoch:       "v1",
		Static:      parts.Static.Policy,
		Dynamic:     parts.Dynamic.Policy,
		Offline:     parts.Offline.Policy,
		SkipWaiting: skipWaiting,
	}, impl.LifecycleDeps{Store: f.store, Fetcher: &mocks.FetcherMock{}, Logger: quietLogger()})
	require.NoError(t, f.lifecycle.Install(context.Background()))
	f.svc = impl.NewMessageService(f.lifecycle, f.store, f.scheduler, quietLogger(), nil)
	return f
}

func (f *messageFixture) send(typ message.Type, payload string) (message.Reply, error) {
	env := message.Envelope{Type: typ}
	if payload != "" {
		env.Payload = json.RawMessage(payload)
	}
	return f.svc.Handle(context.Background(), env)
}

func TestMessage_CacheProgressAndStatus(t *testing.T) {
	f := newMessageFixture(t, true)
	raw := `{"userId":"kid-7","lesson":"counting","stars":3}`

	reply, err := f.send(message.TypeCacheProgress, raw)
	require.NoError(t, err)
	require.Nil(t, reply)

	entry, ok := f.store.Entry("offline-v1", "progress-kid-7")
	require.True(t, ok)
	require.JSONEq(t, raw, string(entry.Payload.Body))
	require.Equal(t, http.StatusOK, entry.Payload.Status)

	reply, err = f.send(message.TypeGetCacheStatus, "")
	require.NoError(t, err)
	status, ok := reply.(message.CacheStatusReply)
	require.True(t, ok)
	require.Equal(t, 1, status["offline-v1"].Entries)
	require.Equal(t, entry.Payload.Size(), status["offline-v1"].ApproxSizeBytes)
	require.Contains(t, status, "static-v1")
	require.Zero(t, status["static-v1"].Entries)
}

func TestMessage_CacheProgressAnonymous(t *testing.T) {
	f := newMessageFixture(t, true)
	_, err := f.send(message.TypeCacheProgress, `{"stars":1}`)
	require.NoError(t, err)
	_, ok := f.store.Entry("offline-v1", "progress-anonymous")
	require.True(t, ok)
}

func TestMessage_CacheProgressWaitsForActivation(t *testing.T) {
	f := newMessageFixture(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.svc.Handle(ctx, message.Envelope{Type: message.TypeCacheProgress, Payload: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMessage_ClearCache(t *testing.T) {
	f := newMessageFixture(t, true)
	f.store.Seed("dynamic-v1", cache.NewEntry("https://app.test/x", payload(200, "x"), time.Time{}))

	reply, err := f.send(message.TypeClearCache, "")
	require.NoError(t, err)
	require.Equal(t, message.ClearCacheReply{Success: true}, reply)
	names, err := f.store.Partitions(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestMessage_ClearCacheReportsFailure(t *testing.T) {
	f := newMessageFixture(t, true)
	f.store.FailDrop = map[string]bool{"static-v1": true}

	reply, err := f.send(message.TypeClearCache, "")
	require.NoError(t, err)
	require.Equal(t, message.ClearCacheReply{Success: false}, reply)
	names, _ := f.store.Partitions(context.Background())
	require.Equal(t, []string{"static-v1"}, names)
}

func TestMessage_SkipWaiting(t *testing.T) {
	f := newMessageFixture(t, false)
	require.Equal(t, ports.LifecycleWaiting, f.lifecycle.State())
	_, err := f.send(message.TypeSkipWaiting, "")
	require.NoError(t, err)
	require.Equal(t, ports.LifecycleActive, f.lifecycle.State())
}

func TestMessage_ScheduleNotification(t *testing.T) {
	f := newMessageFixture(t, true)
	_, err := f.send(message.TypeScheduleNotification, `{"title":"Story time","delay":5,"data":{"url":"/stories"}}`)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.notifier.Shown()) == 1 }, time.Second, 5*time.Millisecond)
	n := f.notifier.Shown()[0]
	require.Equal(t, "Story time", n.Title)
	require.Equal(t, "New learning adventures are waiting for you.", n.Body)
	require.Equal(t, "learning-reminder", n.Tag)
	require.Equal(t, "/stories", n.URL())
}

func TestMessage_UnknownAndMalformed(t *testing.T) {
	f := newMessageFixture(t, true)
	_, err := f.send("PING", "")
	require.ErrorIs(t, err, message.ErrUnknownMessage)

	_, err = f.send(message.TypeScheduleNotification, `{"delay":"soon"}`)
	require.ErrorIs(t, err, message.ErrMalformedPayload)
}
