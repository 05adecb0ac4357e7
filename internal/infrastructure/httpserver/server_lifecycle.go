package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) Start() error {
	s.LogMetricsInitialization()

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		s.logger.WithField("upstream", s.upstreamString()).Infof("Starting HTTPS server on %s", addr)
		return s.echo.StartTLS(addr, s.config.TLSCertFile, s.config.TLSKeyFile)
	}

	server := &http.Server{
		Addr:         addr,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.logger.WithField("upstream", s.upstreamString()).Infof("Starting HTTP server on %s", addr)
	return s.echo.StartServer(server)
}

// Shutdown closes open event streams first; they would otherwise hold the
// graceful shutdown until its deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.echo.Shutdown(ctx)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) upstreamString() string {
	if s.config.Upstream == nil {
		return ""
	}
	return s.config.Upstream.String()
}
