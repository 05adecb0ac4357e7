package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 2 * time.Second

// upstreamCheck names the connectivity probe. Losing it leaves the engine
// serving from cache, so it reports "offline" instead of failing the check.
const upstreamCheck = "upstream"

type healthResult struct {
	name string
	err  error
}

// healthCheck runs every dependency probe concurrently.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	results := make([]healthResult, len(s.healthCheckers))
	var g errgroup.Group
	for i, hc := range s.healthCheckers {
		if hc == nil {
			continue
		}
		g.Go(func() error {
			results[i] = healthResult{name: hc.Name(), err: hc.Check(ctx)}
			return nil
		})
	}
	_ = g.Wait()

	deps := make(map[string]string, len(results))
	overall := "healthy"
	for _, r := range results {
		if r.name == "" {
			continue
		}
		if r.err == nil {
			deps[r.name] = "healthy"
			continue
		}
		deps[r.name] = "unhealthy"
		switch {
		case r.name == upstreamCheck && overall == "healthy":
			overall = "offline"
		case r.name != upstreamCheck:
			overall = "degraded"
		}
	}

	health := map[string]interface{}{
		"status":       overall,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"service":      "offlined",
		"dependencies": deps,
	}
	if s.lifecycle != nil {
		health["lifecycle"] = s.lifecycle.State()
		health["epoch"] = s.lifecycle.Current().Epoch
	}
	if s.queue != nil {
		health["pending_mutations"] = s.queue.Len()
	}
	code := http.StatusOK
	if overall == "degraded" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, health)
}
