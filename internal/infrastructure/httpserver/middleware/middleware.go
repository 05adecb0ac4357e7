package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	JWT       *JWTMiddleware
	RateLimit *RateLimitMiddleware
	Logging   *LoggingMiddleware
	Metrics   *MetricsMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware
func NewMiddlewareCollection(
	tokens ports.TokenService,
	rateLimiter ports.RateLimiterService,
	logger *logrus.Logger,
	requestsTotal *prometheus.CounterVec,
	requestDuration *prometheus.HistogramVec,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		JWT:       NewJWTMiddleware(tokens, logger),
		RateLimit: NewRateLimitMiddleware(rateLimiter, logger),
		Logging:   NewLoggingMiddleware(logger),
		Metrics:   NewMetricsMiddleware(requestsTotal, requestDuration),
	}
}
