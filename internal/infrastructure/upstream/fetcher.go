package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/failure"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type httpFetcher struct {
	client *http.Client
	logger *logrus.Logger
}

// NewFetcher returns a Fetcher over client. A nil client gets one without a
// timeout: requests are bounded only by their context.
func NewFetcher(client *http.Client, logger *logrus.Logger) ports.Fetcher {
	if client == nil {
		client = &http.Client{
			// Redirects are returned to the caller as-is.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	return &httpFetcher{client: client, logger: logger}
}

func (f *httpFetcher) Fetch(ctx context.Context, req *http.Request) (*cache.Payload, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	out.Host = ""
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, failure.Network("fetch", err)
		}
		out.Body = body
	}

	start := time.Now()
	resp, err := f.client.Do(out)
	if err != nil {
		return nil, failure.Network("fetch", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Network("fetch", fmt.Errorf("read body of %s: %w", req.URL, err))
	}
	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	if f.logger != nil {
		f.logger.WithFields(logrus.Fields{"url": req.URL.String(), "method": req.Method, "status": resp.StatusCode, "duration": time.Since(start)}).Debug("upstream: fetched")
	}
	return &cache.Payload{Status: resp.StatusCode, Header: header, Body: body}, nil
}
