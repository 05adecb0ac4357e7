package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/request"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/syncqueue"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// ErrUnsupportedScheme is returned for requests the engine does not intercept.
var ErrUnsupportedScheme = errors.New("dispatcher: only http and https requests are intercepted")

// PartitionGate hands out the current epoch's partitions once activation has
// completed.
type PartitionGate interface {
	Await(ctx context.Context) (ports.PartitionSet, error)
}

// DispatcherService classifies intercepted requests and runs the matching
// caching strategy. It touches storage only through the CacheStore,
// EvictionService and SyncQueueService.
type DispatcherService struct {
	store      ports.CacheStore
	gate       PartitionGate
	fetcher    ports.Fetcher
	queue      ports.SyncQueueService
	classifier *Classifier
	freshness  *FreshnessTracker
	eviction   *EvictionService
	logger     *logrus.Logger
	metrics    ports.EngineMetrics
	now        func() time.Time

	refreshes singleflight.Group
	inflight  sync.WaitGroup
}

// DispatcherDeps groups the collaborators of the dispatcher.
type DispatcherDeps struct {
	Store      ports.CacheStore
	Gate       PartitionGate
	Fetcher    ports.Fetcher
	Queue      ports.SyncQueueService
	Classifier *Classifier
	Freshness  *FreshnessTracker
	Eviction   *EvictionService
	Logger     *logrus.Logger
	Metrics    ports.EngineMetrics
	Now        func() time.Time
}

func NewDispatcherService(deps DispatcherDeps) *DispatcherService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	freshness := deps.Freshness
	if freshness == nil {
		freshness = NewFreshnessTracker(now)
	}
	eviction := deps.Eviction
	if eviction == nil {
		eviction = NewEvictionService(deps.Logger, deps.Metrics)
	}
	return &DispatcherService{
		store:      deps.Store,
		gate:       deps.Gate,
		fetcher:    deps.Fetcher,
		queue:      deps.Queue,
		classifier: deps.Classifier,
		freshness:  freshness,
		eviction:   eviction,
		logger:     deps.Logger,
		metrics:    metricsOrNop(deps.Metrics),
		now:        now,
	}
}

// Dispatch handles one intercepted request.
func (s *DispatcherService) Dispatch(ctx context.Context, req *http.Request) (*ports.DispatchResult, error) {
	if req.URL == nil || (req.URL.Scheme != "http" && req.URL.Scheme != "https") {
		return nil, ErrUnsupportedScheme
	}
	class := s.classifier.Classify(req.URL)

	var res *ports.DispatchResult
	var err error
	switch {
	case req.Method != http.MethodGet && class != request.ClassAPI:
		res = s.passThrough(ctx, req, class)
	default:
		var parts ports.PartitionSet
		parts, err = s.gate.Await(ctx)
		if err != nil {
			return nil, err
		}
		key := cache.NormalizeKey(req.URL)
		switch class {
		case request.ClassStatic:
			res = s.cacheFirst(ctx, req, key, parts.Static)
		case request.ClassAPI:
			res = s.networkFirst(ctx, req, key, parts.Dynamic)
		case request.ClassEducational:
			res = s.staleWhileRevalidate(ctx, req, key, parts.Dynamic)
		default:
			res = s.networkFirstBounded(ctx, req, key, parts.Dynamic)
		}
	}
	res.Class = class
	s.metrics.Dispatched(string(class), string(res.Source))
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"class": class, "source": res.Source, "method": req.Method, "url": req.URL.String(), "stale": res.Stale}).Debug("dispatch: request handled")
	}
	return res, nil
}

// Wait blocks until every background refresh has finished.
func (s *DispatcherService) Wait() {
	s.inflight.Wait()
}

// cacheFirst serves a fresh static entry without network I/O.
func (s *DispatcherService) cacheFirst(ctx context.Context, req *http.Request, key string, p cache.Partition) *ports.DispatchResult {
	part := s.open(ctx, p)
	entry, found := s.lookup(ctx, part, key)
	if found && s.freshness.IsFresh(p.Policy, entry) {
		return fromCache(entry, false)
	}
	payload, err := s.fetch(ctx, req)
	if err == nil {
		if payload.OK() {
			s.write(ctx, part, p.Policy, key, payload)
		}
		return fromNetwork(payload)
	}
	if found {
		return fromCache(entry, true)
	}
	return s.offline()
}

// networkFirst handles API traffic; failed mutations are queued durably.
func (s *DispatcherService) networkFirst(ctx context.Context, req *http.Request, key string, p cache.Partition) *ports.DispatchResult {
	body, err := bufferBody(req)
	if err != nil && s.logger != nil {
		s.logger.WithField("url", req.URL.String()).WithError(err).Warn("dispatch: failed to read request body")
	}
	part := s.open(ctx, p)
	payload, err := s.fetch(ctx, req)
	if err == nil {
		if req.Method == http.MethodGet && payload.OK() {
			s.write(ctx, part, p.Policy, key, payload)
		}
		return fromNetwork(payload)
	}
	if req.Method == http.MethodGet {
		if entry, found := s.lookup(ctx, part, key); found {
			return fromCache(entry, !s.freshness.IsFresh(p.Policy, entry))
		}
		return s.offline()
	}

	m := syncqueue.NewMutation(req.Method, req.URL.String(), req.Header, body, s.now())
	if s.queue != nil {
		if qerr := s.queue.Enqueue(ctx, m); qerr != nil && s.logger != nil {
			s.logger.WithFields(logrus.Fields{"url": m.URL, "method": m.Method}).WithError(qerr).Error("dispatch: mutation could not be queued")
		}
	}
	return s.offline()
}

// staleWhileRevalidate returns any cached entry at once and refreshes it in
// the background; the refreshed bytes never reach this caller.
func (s *DispatcherService) staleWhileRevalidate(ctx context.Context, req *http.Request, key string, p cache.Partition) *ports.DispatchResult {
	part := s.open(ctx, p)
	if entry, found := s.lookup(ctx, part, key); found {
		s.revalidate(ctx, req, key, p)
		return fromCache(entry, !s.freshness.IsFresh(p.Policy, entry))
	}
	payload, err := s.fetch(ctx, req)
	if err != nil {
		return s.offline()
	}
	if payload.OK() {
		s.write(ctx, part, p.Policy, key, payload)
	}
	return fromNetwork(payload)
}

func (s *DispatcherService) networkFirstBounded(ctx context.Context, req *http.Request, key string, p cache.Partition) *ports.DispatchResult {
	part := s.open(ctx, p)
	payload, err := s.fetch(ctx, req)
	if err == nil {
		if payload.OK() {
			s.write(ctx, part, p.Policy, key, payload)
		}
		return fromNetwork(payload)
	}
	if entry, found := s.lookup(ctx, part, key); found {
		return fromCache(entry, !s.freshness.IsFresh(p.Policy, entry))
	}
	return s.offline()
}

func (s *DispatcherService) passThrough(ctx context.Context, req *http.Request, class request.Class) *ports.DispatchResult {
	payload, err := s.fetch(ctx, req)
	if err != nil {
		return s.offline()
	}
	return &ports.DispatchResult{Class: class, Source: request.SourcePassThrough, Payload: payload}
}

// revalidate refreshes key detached from the caller's context. Concurrent
// refreshes of one key collapse into a single fetch.
func (s *DispatcherService) revalidate(ctx context.Context, req *http.Request, key string, p cache.Partition) {
	bgCtx := context.WithoutCancel(ctx)
	bgReq := req.Clone(bgCtx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_, _, _ = s.refreshes.Do(p.Name()+"|"+key, func() (any, error) {
			payload, err := s.fetch(bgCtx, bgReq)
			if err != nil {
				return nil, err
			}
			if payload.OK() {
				s.write(bgCtx, s.open(bgCtx, p), p.Policy, key, payload)
			}
			return nil, nil
		})
	}()
}

func (s *DispatcherService) fetch(ctx context.Context, req *http.Request) (*cache.Payload, error) {
	payload, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"url": req.URL.String(), "method": req.Method}).WithError(err).Debug("dispatch: network failure")
		}
		return nil, err
	}
	return payload, nil
}

// open returns nil when the store is unavailable; lookups and writes on a
// nil partition are no-ops.
func (s *DispatcherService) open(ctx context.Context, p cache.Partition) ports.CachePartition {
	part, err := s.store.Open(ctx, p.Name())
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("partition", p.Name()).WithError(err).Error("dispatch: failed to open partition")
		}
		return nil
	}
	return part
}

func (s *DispatcherService) lookup(ctx context.Context, part ports.CachePartition, key string) (*cache.Entry, bool) {
	if part == nil {
		return nil, false
	}
	entry, ok, err := part.Get(ctx, key)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"partition": part.Name(), "key": key}).WithError(err).Warn("dispatch: cache read failed")
		}
		return nil, false
	}
	return entry, ok
}

func (s *DispatcherService) write(ctx context.Context, part ports.CachePartition, policy cache.Policy, key string, payload *cache.Payload) {
	if part == nil {
		return
	}
	if _, err := s.eviction.EnsureCapacity(ctx, part, policy); err != nil && s.logger != nil {
		s.logger.WithField("partition", part.Name()).WithError(err).Warn("dispatch: eviction failed")
	}
	if err := part.Put(ctx, key, cache.NewEntry(key, payload, s.now())); err != nil && s.logger != nil {
		s.logger.WithFields(logrus.Fields{"partition": part.Name(), "key": key}).WithError(err).Warn("dispatch: cache write failed")
	}
}

func (s *DispatcherService) offline() *ports.DispatchResult {
	return &ports.DispatchResult{Source: request.SourceOffline, Payload: cache.OfflinePayload(s.now())}
}

func fromCache(e *cache.Entry, stale bool) *ports.DispatchResult {
	return &ports.DispatchResult{Source: request.SourceCache, Payload: e.Payload.Clone(), Stale: stale}
}

func fromNetwork(p *cache.Payload) *ports.DispatchResult {
	return &ports.DispatchResult{Source: request.SourceNetwork, Payload: p}
}

// bufferBody reads the request body once so it can be both sent and queued.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return body, err
}
