package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_http_requests_total",
			Help: "HTTP requests served by the engine",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Intercepted requests include upstream time and lesson downloads.
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_http_request_duration_seconds",
			Help:    "Latency of requests served by the engine, including upstream time",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	metricsHandler = promhttp.Handler()
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

// GetRequestsTotal returns the requests total metric for middleware use
func GetRequestsTotal() *prometheus.CounterVec {
	return requestsTotal
}

// GetRequestDuration returns the request duration metric for middleware use
func GetRequestDuration() *prometheus.HistogramVec {
	return requestDuration
}

// LogMetricsInitialization lists the exposed series at debug level.
func (s *Server) LogMetricsInitialization() {
	if s.logger == nil {
		return
	}
	s.logger.WithField("endpoint", ControlPrefix+"/metrics").Info("Prometheus metrics registered")
	s.logger.WithField("series", []string{
		"engine_http_requests_total",
		"engine_http_request_duration_seconds",
		"engine_requests_dispatched_total",
		"engine_cache_evictions_total",
		"engine_sync_queue_length",
		"engine_sync_replays_total",
		"engine_partitions_dropped_total",
	}).Debug("Available Prometheus metrics")
}

func (s *Server) metricsEndpoint(c echo.Context) error {
	metricsHandler.ServeHTTP(c.Response(), c.Request())
	return nil
}
