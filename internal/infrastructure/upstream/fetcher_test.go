package upstream_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/failure"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/upstream"
)

func TestFetcher_ForwardsRequestAndStripsHopHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "stars=3", string(body))
		assert.Equal(t, "kid-7", r.Header.Get("X-Learner"))
		assert.Empty(t, r.Header.Get("Proxy-Authorization"))
		w.Header().Set("X-Lesson", "7")
		w.Header().Set("Keep-Alive", "timeout=5")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("saved"))
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/progress", strings.NewReader("stars=3"))
	require.NoError(t, err)
	req.Header.Set("X-Learner", "kid-7")
	req.Header.Set("Proxy-Authorization", "secret")

	p, err := upstream.NewFetcher(nil, nil).Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, p.Status)
	require.Equal(t, "saved", string(p.Body))
	require.Equal(t, "7", p.Header.Get("X-Lesson"))
	require.Empty(t, p.Header.Get("Keep-Alive"))
}

func TestFetcher_RedirectsAreReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/start", nil)
	p, err := upstream.NewFetcher(nil, nil).Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, p.Status)
	require.Equal(t, "/elsewhere", p.Header.Get("Location"))
}

func TestFetcher_TransportErrorIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	req, _ := http.NewRequest(http.MethodGet, addr+"/", nil)
	_, err := upstream.NewFetcher(nil, nil).Fetch(context.Background(), req)
	require.Error(t, err)
	require.True(t, failure.Is(err, failure.KindNetwork))
}

func TestMonitor_FiresOnReconnect(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	probe := srv.URL + "/ping"
	fetcher := upstream.NewFetcher(nil, nil)
	var wakes atomic.Int32
	m := upstream.NewMonitor(fetcherFunc(func(ctx context.Context, req *http.Request) error {
		if !healthy.Load() {
			return context.DeadlineExceeded
		}
		_, err := fetcher.Fetch(ctx, req)
		return err
	}), probe, time.Second, func(context.Context) { wakes.Add(1) }, nil)

	require.True(t, m.Online())
	require.False(t, m.Probe(context.Background()))
	require.False(t, m.Online())
	require.Error(t, m.Check(context.Background()))

	healthy.Store(true)
	require.True(t, m.Probe(context.Background()))
	require.True(t, m.Probe(context.Background()))
	require.EqualValues(t, 1, wakes.Load())
	require.Equal(t, "upstream", m.Name())
	require.NoError(t, m.Check(context.Background()))
}

func TestMonitor_RunStopsWithContext(t *testing.T) {
	m := upstream.NewMonitor(fetcherFunc(func(context.Context, *http.Request) error { return nil }), "http://probe.test/", 5*time.Millisecond, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
