package httpserver

import (
	"net/url"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/application/engine"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/clients"
	customMiddleware "github.com/avatarctic/offline-sync-engine/internal/infrastructure/httpserver/middleware"
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
	// Upstream resolves origin-form request targets.
	Upstream *url.URL
	// EventPing is the keep-alive interval of the event stream.
	EventPing time.Duration
}

type ServerDeps struct {
	Engine         *engine.Engine
	Lifecycle      ports.LifecycleService
	Queue          ports.SyncQueueService
	Hub            *clients.Hub
	Tokens         ports.TokenService
	// RateLimiter is optional; nil leaves the control channel unlimited.
	RateLimiter    ports.RateLimiterService
	HealthCheckers []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	engine         *engine.Engine
	lifecycle      ports.LifecycleService
	queue          ports.SyncQueueService
	hub            *clients.Hub
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker

	// closing ends long-lived event streams on shutdown.
	closing   chan struct{}
	closeOnce sync.Once
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true

	if serverConfig.EventPing <= 0 {
		serverConfig.EventPing = 15 * time.Second
	}

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		engine:         deps.Engine,
		lifecycle:      deps.Lifecycle,
		queue:          deps.Queue,
		hub:            deps.Hub,
		healthCheckers: deps.HealthCheckers,
		closing:        make(chan struct{}),
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.Tokens,
			deps.RateLimiter,
			logger,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
