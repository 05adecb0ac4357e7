package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/httpserver/helpers"
)

// getEvents streams hub events to one foreground client as server-sent events.
func (s *Server) getEvents(c echo.Context) error {
	if s.hub == nil {
		return echo.NewHTTPError(http.StatusNotFound, "event stream disabled")
	}
	id, events, cancel := s.hub.Subscribe()
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": connected %s\n\n", id)
	w.Flush()

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"client_id": helpers.GetClientID(c), "subscription": id}).Info("events: client connected")
	}

	ping := time.NewTicker(s.config.EventPing)
	defer ping.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.WithField("subscription", id).Info("events: client disconnected")
			}
			return nil
		case <-s.closing:
			return nil
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
