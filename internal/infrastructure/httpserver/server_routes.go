package httpserver

// ControlPrefix is the path prefix the engine keeps for itself; everything
// else is intercepted.
const ControlPrefix = "/_engine"

func (s *Server) setupRoutes() {
	ctl := s.echo.Group(ControlPrefix)
	ctl.GET("/health", s.healthCheck)
	ctl.GET("/metrics", s.metricsEndpoint)

	protected := ctl.Group("")
	protected.Use(s.middleware.JWT.RequireJWT(), s.middleware.RateLimit.Handler())

	protected.POST("/messages", s.postMessage)
	protected.POST("/push", s.postPush)
	protected.POST("/notifications/click", s.postNotificationClick)
	protected.POST("/sync", s.postSync)
	protected.GET("/queue", s.getQueue)
	protected.GET("/lifecycle", s.getLifecycle)
	protected.POST("/lifecycle/install", s.postInstall)
	protected.POST("/lifecycle/activate", s.postActivate)
	protected.GET("/events", s.getEvents)

	ctl.Any("", s.controlNotFound)
	ctl.Any("/*", s.controlNotFound)

	s.echo.Any("/*", s.intercept)
}
