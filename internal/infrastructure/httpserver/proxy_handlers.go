package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/offline-sync-engine/internal/application/services"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

const (
	headerSource = "X-Engine-Source"
	headerClass  = "X-Engine-Class"
	headerStale  = "X-Engine-Stale"
)

// intercept hands every non-control request to the dispatcher and writes
// back whatever payload it chose.
func (s *Server) intercept(c echo.Context) error {
	ctx := c.Request().Context()
	req := s.outbound(c.Request())

	res, err := s.engine.Fetch(ctx, req).Await(ctx)
	if errors.Is(err, services.ErrUnsupportedScheme) {
		return echo.NewHTTPError(http.StatusBadGateway, "scheme is not intercepted")
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return writeResult(c, res)
}

// outbound rebuilds the intercepted request with an absolute target.
// Absolute-form targets (proxy mode) are kept; origin-form targets resolve
// against the upstream.
func (s *Server) outbound(in *http.Request) *http.Request {
	out := in.Clone(in.Context())
	out.RequestURI = ""
	if !in.URL.IsAbs() && s.config.Upstream != nil {
		out.URL = s.config.Upstream.ResolveReference(&url.URL{
			Path:     in.URL.Path,
			RawPath:  in.URL.RawPath,
			RawQuery: in.URL.RawQuery,
		})
	}
	out.Host = out.URL.Host
	return out
}

func writeResult(c echo.Context, res *ports.DispatchResult) error {
	h := c.Response().Header()
	if res.Payload != nil {
		for k, values := range res.Payload.Header {
			for _, v := range values {
				h.Add(k, v)
			}
		}
	}
	h.Set(headerSource, string(res.Source))
	if res.Class != "" {
		h.Set(headerClass, string(res.Class))
	}
	if res.Stale {
		h.Set(headerStale, strconv.FormatBool(true))
	}
	if res.Payload == nil {
		return c.NoContent(http.StatusBadGateway)
	}
	h.Del(echo.HeaderContentLength)
	c.Response().WriteHeader(res.Payload.Status)
	_, err := c.Response().Write(res.Payload.Body)
	return err
}
