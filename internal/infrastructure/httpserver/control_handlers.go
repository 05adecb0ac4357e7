package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/application/services"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/message"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/httpserver/helpers"
)

// maxControlBody caps control-channel request bodies.
const maxControlBody = 1 << 20

// controlNotFound keeps unknown control paths from reaching the upstream.
func (s *Server) controlNotFound(c echo.Context) error {
	return echo.NewHTTPError(http.StatusNotFound, "unknown control endpoint")
}

func (s *Server) postMessage(c echo.Context) error {
	var env message.Envelope
	if err := c.Bind(&env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message envelope")
	}
	ctx := c.Request().Context()
	reply, err := s.engine.Message(ctx, env).Await(ctx)
	if err != nil {
		if errors.Is(err, message.ErrUnknownMessage) || errors.Is(err, message.ErrMalformedPayload) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"type": env.Type, "client_id": helpers.GetClientID(c)}).Debug("control: message handled")
	}
	if reply == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) postPush(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxControlBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read push payload")
	}
	ctx := c.Request().Context()
	n, err := s.engine.Push(ctx, payload).Await(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "notification delivery failed")
	}
	return c.JSON(http.StatusOK, n)
}

type clickRequest struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

type clickResponse struct {
	Open string `json:"open"`
}

// postNotificationClick routes a notification action to the page to open.
func (s *Server) postNotificationClick(c echo.Context) error {
	var req clickRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid click payload")
	}
	target, ok := notification.ClickTarget(notification.Notification{Data: req.Data}, req.Action)
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, clickResponse{Open: target})
}

func (s *Server) postSync(c echo.Context) error {
	ctx := c.Request().Context()
	report, err := s.engine.Sync(ctx).Await(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) getQueue(c echo.Context) error {
	pending, err := s.queue.ListAll(c.Request().Context())
	if err != nil {
		// The store is unreachable; fall back to the last mirrored view.
		pending = s.queue.Snapshot()
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pending":   pending,
		"count":     len(pending),
		"from_disk": err == nil,
	})
}

func (s *Server) getLifecycle(c echo.Context) error {
	clientCount := 0
	if s.hub != nil {
		clientCount = s.hub.Clients()
	}
	current := s.lifecycle.Current()
	partitions := make([]string, 0, 3)
	for _, p := range current.Partitions() {
		partitions = append(partitions, p.Name())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"state":      s.lifecycle.State(),
		"epoch":      current.Epoch,
		"partitions": partitions,
		"clients":    clientCount,
	})
}

func (s *Server) postInstall(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := s.engine.Install(ctx).Await(ctx); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return s.getLifecycle(c)
}

func (s *Server) postActivate(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := s.engine.Activate(ctx).Await(ctx); err != nil {
		if errors.Is(err, services.ErrNotInstalled) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return s.getLifecycle(c)
}
