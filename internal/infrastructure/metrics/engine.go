package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// EngineMetrics implements ports.EngineMetrics with Prometheus collectors.
type EngineMetrics struct {
	dispatched *prometheus.CounterVec
	evicted    *prometheus.CounterVec
	queueLen   prometheus.Gauge
	replayed   *prometheus.CounterVec
	dropped    *prometheus.CounterVec
}

var _ ports.EngineMetrics = (*EngineMetrics)(nil)

// NewEngineMetrics creates the collectors and registers them with reg.
func NewEngineMetrics(reg prometheus.Registerer) (*EngineMetrics, error) {
	m := &EngineMetrics{
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_requests_dispatched_total",
				Help: "Intercepted requests by class and response source",
			},
			[]string{"class", "source"},
		),
		evicted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_cache_evictions_total",
				Help: "Entries removed by the eviction manager",
			},
			[]string{"partition"},
		),
		queueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_sync_queue_length",
			Help: "Pending mutations in the sync queue mirror",
		}),
		replayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_sync_replays_total",
				Help: "Replayed mutations by outcome",
			},
			[]string{"success"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_partitions_dropped_total",
				Help: "Partitions deleted by cutover or CLEAR_CACHE",
			},
			[]string{"partition"},
		),
	}
	for _, c := range []prometheus.Collector{m.dispatched, m.evicted, m.queueLen, m.replayed, m.dropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *EngineMetrics) Dispatched(class, source string) {
	m.dispatched.WithLabelValues(class, source).Inc()
}

func (m *EngineMetrics) Evicted(partition string, n int) {
	if n > 0 {
		m.evicted.WithLabelValues(partition).Add(float64(n))
	}
}

func (m *EngineMetrics) QueueLength(n int) {
	m.queueLen.Set(float64(n))
}

func (m *EngineMetrics) Replayed(succeeded, failed int) {
	m.replayed.WithLabelValues(strconv.FormatBool(true)).Add(float64(succeeded))
	m.replayed.WithLabelValues(strconv.FormatBool(false)).Add(float64(failed))
}

func (m *EngineMetrics) PartitionDropped(name string) {
	m.dropped.WithLabelValues(name).Inc()
}
