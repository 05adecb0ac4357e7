package httpserver_test

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/clients"
)

func TestServer_EventStreamDeliversClaims(t *testing.T) {
	f := newServerFixture(t, nil, false)
	srv := httptest.NewServer(f.server.Echo())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/_engine/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, f.hub.Claim(ctx, "v1"))

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && eventLine != "":
			dataLine = strings.TrimPrefix(line, "data: ")
		}
	}
	require.Equal(t, clients.EventActivated, eventLine)
	require.JSONEq(t, `{"epoch":"v1"}`, dataLine)
}

func TestServer_ShutdownEndsEventStreams(t *testing.T) {
	f := newServerFixture(t, nil, true)
	srv := httptest.NewServer(f.server.Echo())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/_engine/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.server.Shutdown(ctx))

	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
