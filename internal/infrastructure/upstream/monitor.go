package upstream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// Monitor probes the upstream on an interval and fires onOnline whenever the
// probe goes from failing to succeeding.
type Monitor struct {
	fetcher  ports.Fetcher
	probeURL string
	interval time.Duration
	onOnline func(context.Context)
	logger   *logrus.Logger

	mu     sync.RWMutex
	online bool
}

func NewMonitor(fetcher ports.Fetcher, probeURL string, interval time.Duration, onOnline func(context.Context), logger *logrus.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		fetcher:  fetcher,
		probeURL: probeURL,
		interval: interval,
		onOnline: onOnline,
		logger:   logger,
		// Assume online so a healthy start does not trigger a replay by itself.
		online: true,
	}
}

// Run probes until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs one check and reports the resulting connectivity.
func (m *Monitor) Probe(ctx context.Context) bool {
	up := m.check(ctx)

	m.mu.Lock()
	wasOnline := m.online
	m.online = up
	m.mu.Unlock()

	if up != wasOnline && m.logger != nil {
		m.logger.WithFields(logrus.Fields{"url": m.probeURL, "online": up}).Info("connectivity: changed")
	}
	if up && !wasOnline && m.onOnline != nil {
		m.onOnline(ctx)
	}
	return up
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Name and Check let the monitor serve as the upstream health checker.
func (m *Monitor) Name() string { return "upstream" }

func (m *Monitor) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return err
	}
	_, err = m.fetcher.Fetch(ctx, req)
	return err
}

func (m *Monitor) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	return m.Check(probeCtx) == nil
}
