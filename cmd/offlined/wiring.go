package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/configs"
	"github.com/avatarctic/offline-sync-engine/internal/application/engine"
	"github.com/avatarctic/offline-sync-engine/internal/application/services"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/clients"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/db"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/email"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/health"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/metrics"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/redis"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/repositories"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/upstream"
)

// app is the fully wired engine shared by every subcommand.
type app struct {
	cfg    *configs.Config
	logger *logrus.Logger

	database    *db.Database
	redisClient *goredis.Client
	upstream    *url.URL

	store      ports.CacheStore
	fetcher    ports.Fetcher
	queue      *services.SyncQueueService
	hub        *clients.Hub
	scheduler  *services.NotificationScheduler
	lifecycle  *services.LifecycleService
	dispatcher *services.DispatcherService
	replay     *services.ReplayService
	engine     *engine.Engine
	monitor    *upstream.Monitor
	tokens     *services.TokenService
	limiter    *services.RateLimiterService

	healthCheckers []ports.HealthChecker
}

func loadConfig() (*configs.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return configs.Load()
}

func newLogger(cfg *configs.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

// buildApp wires storage, services and the task engine. A nil registerer
// leaves engine metrics unrecorded.
func buildApp(cfg *configs.Config, logger *logrus.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	base, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid UPSTREAM_URL %q", cfg.Upstream.BaseURL)
	}
	a.upstream = base

	var engineMetrics ports.EngineMetrics
	if reg != nil {
		m, err := metrics.NewEngineMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("register engine metrics: %w", err)
		}
		engineMetrics = m
	}

	a.database, err = db.NewDatabaseWithConfig(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := a.database.Migrate(); err != nil {
		a.Close()
		return nil, err
	}
	logger.WithField("driver", a.database.Driver).Info("Connected to database successfully")
	a.healthCheckers = append(a.healthCheckers, health.NewDBHealthChecker(a.database))

	switch cfg.Cache.Backend {
	case "redis":
		a.redisClient, err = redis.NewRedisClient(&cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("Connected to Redis successfully")
		a.store = redis.NewCacheStore(a.redisClient, cfg.Redis.KeyPrefix, logger)
		a.healthCheckers = append(a.healthCheckers, health.NewRedisHealthChecker(a.redisClient))
	default:
		a.store = repositories.NewCacheStoreRepository(a.database, logger)
	}
	a.healthCheckers = append(a.healthCheckers, health.NewCacheStoreHealthChecker(a.store))

	a.fetcher = upstream.NewFetcher(nil, logger)
	a.queue = services.NewSyncQueueService(
		repositories.NewMutationRepository(a.database, logger),
		&services.SyncQueueConfig{EnqueueAttempts: cfg.Sync.EnqueueAttempts, EnqueueBackoff: cfg.Sync.EnqueueBackoff},
		logger,
		engineMetrics,
	)

	a.hub = clients.NewHub(logger)
	notifiers := services.FanoutNotifier{a.hub}
	if cfg.Notification.SendGridAPIKey != "" && cfg.Notification.Recipient != "" {
		mailer, err := email.NewNotifier(&email.Config{
			SendGridAPIKey: cfg.Notification.SendGridAPIKey,
			FromEmail:      cfg.Notification.FromEmail,
			FromName:       cfg.Notification.FromName,
			Recipient:      cfg.Notification.Recipient,
			BaseURL:        base.String(),
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		notifiers = append(notifiers, mailer)
	}
	a.scheduler = services.NewNotificationScheduler(notifiers, logger)

	a.lifecycle = services.NewLifecycleService(services.LifecycleConfig{
		Epoch:       cfg.Cache.Epoch,
		Static:      policy(cfg.Cache.Static),
		Dynamic:     policy(cfg.Cache.Dynamic),
		Offline:     policy(cfg.Cache.Offline),
		CoreAssets:  cfg.Cache.CoreAssets,
		AssetBase:   base,
		SkipWaiting: cfg.Cache.SkipWaiting,
	}, services.LifecycleDeps{
		Store:   a.store,
		Fetcher: a.fetcher,
		Queue:   a.queue,
		Clients: a.hub,
		Logger:  logger,
		Metrics: engineMetrics,
	})

	classifier, err := services.NewClassifier(services.ClassifierConfig{
		CoreAssets:          cfg.Cache.CoreAssets,
		ContentDirs:         cfg.Cache.ContentDirs,
		BackendHostPatterns: cfg.Cache.BackendHostPatterns,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = services.NewDispatcherService(services.DispatcherDeps{
		Store:      a.store,
		Gate:       a.lifecycle,
		Fetcher:    a.fetcher,
		Queue:      a.queue,
		Classifier: classifier,
		Logger:     logger,
		Metrics:    engineMetrics,
	})
	a.replay = services.NewReplayService(a.queue, a.fetcher, logger, engineMetrics)

	a.engine = engine.New(engine.Deps{
		Lifecycle:  a.lifecycle,
		Dispatcher: a.dispatcher,
		Replay:     a.replay,
		Messages:   services.NewMessageService(a.lifecycle, a.store, a.scheduler, logger, engineMetrics),
		Push:       services.NewPushService(notifiers, logger),
		Logger:     logger,
	})

	probe := base.ResolveReference(&url.URL{Path: cfg.Upstream.ProbePath})
	a.monitor = upstream.NewMonitor(a.fetcher, probe.String(), cfg.Upstream.ProbeInterval, a.wake, logger)
	a.healthCheckers = append(a.healthCheckers, a.monitor)

	a.tokens = services.NewTokenService(cfg.Control.JWTSecret, cfg.Control.TokenTTL)
	if a.redisClient != nil && cfg.Control.RateLimitPerMinute > 0 {
		a.limiter = services.NewRateLimiterService(redis.NewRateLimitCounter(a.redisClient), &services.RateLimiterConfig{
			RequestsPerMinute: cfg.Control.RateLimitPerMinute,
			BurstMultiplier:   cfg.Control.RateLimitBurst,
			KeyPrefix:         cfg.Redis.KeyPrefix + ":ratelimit",
		}, logger)
	}
	return a, nil
}

// wake drains the sync queue; used for connectivity and activation signals.
func (a *app) wake(ctx context.Context) {
	report, err := a.engine.Sync(ctx).Await(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Sync replay failed")
		return
	}
	a.logger.WithFields(logrus.Fields{
		"attempted": report.Attempted,
		"succeeded": report.Succeeded,
		"remaining": report.Remaining,
	}).Info("Sync replay finished")
}

// controlTokens returns nil when no secret is configured so the control
// channel runs without auth.
func (a *app) controlTokens() ports.TokenService {
	if a.cfg.Control.JWTSecret == "" {
		return nil
	}
	return a.tokens
}

// controlLimiter is nil unless Redis backs the counters.
func (a *app) controlLimiter() ports.RateLimiterService {
	if a.limiter == nil {
		return nil
	}
	return a.limiter
}

func (a *app) Close() {
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.database != nil {
		_ = a.database.Close()
	}
}

func policy(p configs.PolicyConfig) cache.Policy {
	return cache.Policy{MaxAge: p.MaxAge, MaxEntries: p.MaxEntries}
}
