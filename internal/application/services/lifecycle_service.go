package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

var ErrNotInstalled = errors.New("lifecycle: activate requires a completed install")

// LifecycleConfig describes the epoch this process serves.
type LifecycleConfig struct {
	Epoch   string
	Static  cache.Policy
	Dynamic cache.Policy
	Offline cache.Policy
	// CoreAssets is the install manifest, resolved against AssetBase.
	CoreAssets  []string
	AssetBase   *url.URL
	SkipWaiting bool
}

var _ ports.LifecycleService = (*LifecycleService)(nil)

// LifecycleService runs install, activation and epoch cutover. Activation
// opens the gate request handling waits on.
type LifecycleService struct {
	store   ports.CacheStore
	fetcher ports.Fetcher
	queue   ports.SyncQueueService
	clients ports.ClientHub
	logger  *logrus.Logger
	metrics ports.EngineMetrics
	now     func() time.Time
	cfg     LifecycleConfig
	parts   ports.PartitionSet

	// opMu serializes install/activate/skip-waiting.
	opMu sync.Mutex

	mu            sync.RWMutex
	state         ports.LifecycleState
	skipRequested bool

	ready     chan struct{}
	readyOnce sync.Once
}

// LifecycleDeps groups the collaborators of the lifecycle manager.
type LifecycleDeps struct {
	Store   ports.CacheStore
	Fetcher ports.Fetcher
	Queue   ports.SyncQueueService
	Clients ports.ClientHub
	Logger  *logrus.Logger
	Metrics ports.EngineMetrics
	Now     func() time.Time
}

func NewLifecycleService(cfg LifecycleConfig, deps LifecycleDeps) *LifecycleService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &LifecycleService{
		store:   deps.Store,
		fetcher: deps.Fetcher,
		queue:   deps.Queue,
		clients: deps.Clients,
		logger:  deps.Logger,
		metrics: metricsOrNop(deps.Metrics),
		now:     now,
		cfg:     cfg,
		parts: ports.PartitionSet{
			Epoch:   cfg.Epoch,
			Static:  cache.Partition{Family: cache.FamilyStatic, Epoch: cfg.Epoch, Policy: cfg.Static},
			Dynamic: cache.Partition{Family: cache.FamilyDynamic, Epoch: cfg.Epoch, Policy: cfg.Dynamic},
			Offline: cache.Partition{Family: cache.FamilyOffline, Epoch: cfg.Epoch, Policy: cfg.Offline},
		},
		state: ports.LifecycleUninstalled,
		ready: make(chan struct{}),
	}
}

func (s *LifecycleService) State() ports.LifecycleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *LifecycleService) Current() ports.PartitionSet {
	return s.parts
}

// Await blocks until activation has completed or ctx ends.
func (s *LifecycleService) Await(ctx context.Context) (ports.PartitionSet, error) {
	select {
	case <-s.ready:
		return s.parts, nil
	case <-ctx.Done():
		return ports.PartitionSet{}, ctx.Err()
	}
}

// Install seeds the Static partition with the core-asset manifest and creates
// the Offline partition. Seeding is all-or-nothing.
func (s *LifecycleService) Install(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	switch s.State() {
	case ports.LifecycleWaiting, ports.LifecycleActive:
		return nil
	}
	s.setState(ports.LifecycleInstalling)

	if err := s.seed(ctx); err != nil {
		if !s.previouslyInstalled(ctx) {
			s.setState(ports.LifecycleUninstalled)
			return fmt.Errorf("install %s: %w", s.cfg.Epoch, err)
		}
		if s.logger != nil {
			s.logger.WithField("epoch", s.cfg.Epoch).WithError(err).Warn("lifecycle: reseeding failed, keeping previously installed partitions")
		}
	}
	if _, err := s.store.Open(ctx, s.parts.Offline.Name()); err != nil {
		s.setState(ports.LifecycleUninstalled)
		return fmt.Errorf("install %s: create offline partition: %w", s.cfg.Epoch, err)
	}
	s.setState(ports.LifecycleWaiting)
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"epoch": s.cfg.Epoch, "assets": len(s.cfg.CoreAssets)}).Info("lifecycle: installed")
	}

	s.mu.RLock()
	skip := s.cfg.SkipWaiting || s.skipRequested
	s.mu.RUnlock()
	if skip {
		return s.activate(ctx)
	}
	return nil
}

// SkipWaiting activates a waiting install now, or remembers the request for
// the next install.
func (s *LifecycleService) SkipWaiting(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State() == ports.LifecycleWaiting {
		return s.activate(ctx)
	}
	s.mu.Lock()
	s.skipRequested = true
	s.mu.Unlock()
	return nil
}

// Activate performs epoch cutover, claims clients, rebuilds the queue mirror
// and opens the request gate.
func (s *LifecycleService) Activate(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.activate(ctx)
}

func (s *LifecycleService) activate(ctx context.Context) error {
	switch s.State() {
	case ports.LifecycleActive:
		return nil
	case ports.LifecycleUninstalled, ports.LifecycleInstalling:
		return ErrNotInstalled
	}

	dropped := s.cutover(ctx)
	for _, p := range s.parts.Partitions() {
		if _, err := s.store.Open(ctx, p.Name()); err != nil && s.logger != nil {
			s.logger.WithField("partition", p.Name()).WithError(err).Warn("lifecycle: failed to open current partition")
		}
	}

	s.setState(ports.LifecycleActive)
	claimed := 0
	if s.clients != nil {
		claimed = s.clients.Claim(ctx, s.cfg.Epoch)
	}
	if s.queue != nil {
		// The mirror is rebuilt, never carried over; a failure leaves it empty
		// until the next successful read.
		_ = s.queue.Reload(ctx)
	}
	s.readyOnce.Do(func() { close(s.ready) })

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"epoch": s.cfg.Epoch, "dropped": dropped, "clients": claimed}).Info("lifecycle: activated")
	}
	return nil
}

// cutover deletes every partition of a known family whose epoch is not the
// current one. Failures are logged and skipped.
func (s *LifecycleService) cutover(ctx context.Context) []string {
	names, err := s.store.Partitions(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("lifecycle: cannot list partitions, skipping cutover")
		}
		return nil
	}
	var dropped []string
	for _, name := range names {
		family, epoch, ok := cache.ParseName(name)
		if !ok || !family.Known() || epoch == s.cfg.Epoch {
			continue
		}
		if _, err := s.store.Drop(ctx, name); err != nil {
			if s.logger != nil {
				s.logger.WithField("partition", name).WithError(err).Warn("lifecycle: failed to delete stale partition")
			}
			continue
		}
		s.metrics.PartitionDropped(name)
		dropped = append(dropped, name)
	}
	return dropped
}

// Retire marks this instance redundant. The gate stays open so in-flight
// requests drain.
func (s *LifecycleService) Retire() {
	s.setState(ports.LifecycleRedundant)
	if s.logger != nil {
		s.logger.WithField("epoch", s.cfg.Epoch).Info("lifecycle: redundant")
	}
}

func (s *LifecycleService) seed(ctx context.Context) error {
	type seeded struct {
		key     string
		payload *cache.Payload
	}
	targets := make([]*url.URL, len(s.cfg.CoreAssets))
	for i, asset := range s.cfg.CoreAssets {
		target, err := s.resolve(asset)
		if err != nil {
			return err
		}
		targets[i] = target
	}
	results := make([]seeded, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, target.String(), nil)
			if err != nil {
				return err
			}
			payload, err := s.fetcher.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", target, err)
			}
			if !payload.OK() {
				return fmt.Errorf("fetch %s: status %d", target, payload.Status)
			}
			results[i] = seeded{key: cache.NormalizeKey(target), payload: payload}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	part, err := s.store.Open(ctx, s.parts.Static.Name())
	if err != nil {
		return fmt.Errorf("open static partition: %w", err)
	}
	storedAt := s.now()
	for _, r := range results {
		if err := part.Put(ctx, r.key, cache.NewEntry(r.key, r.payload, storedAt)); err != nil {
			return fmt.Errorf("seed %s: %w", r.key, err)
		}
	}
	return nil
}

func (s *LifecycleService) resolve(asset string) (*url.URL, error) {
	ref, err := url.Parse(asset)
	if err != nil {
		return nil, fmt.Errorf("invalid core asset %q: %w", asset, err)
	}
	if s.cfg.AssetBase == nil {
		if !ref.IsAbs() {
			return nil, fmt.Errorf("core asset %q is relative and no asset base is configured", asset)
		}
		return ref, nil
	}
	return s.cfg.AssetBase.ResolveReference(ref), nil
}

// previouslyInstalled reports whether this epoch's Static partition already
// holds entries from an earlier run of the same epoch.
func (s *LifecycleService) previouslyInstalled(ctx context.Context) bool {
	names, err := s.store.Partitions(ctx)
	if err != nil {
		return false
	}
	for _, name := range names {
		if name != s.parts.Static.Name() {
			continue
		}
		part, err := s.store.Open(ctx, name)
		if err != nil {
			return false
		}
		keys, err := part.Keys(ctx)
		return err == nil && len(keys) > 0
	}
	return false
}

func (s *LifecycleService) setState(state ports.LifecycleState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
