package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/httpserver"
)

var shutdownTimeout time.Duration

// serveCmd runs the engine
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and its HTTP surface",
	Long: `Start intercepting requests.

On start the engine installs the configured epoch (seeding the core assets),
activates it when skip-waiting is enabled, then replays any mutations left
in the sync queue by an earlier run.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Grace period for in-flight requests on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(&cfg.Log)
	logger.Info("Starting offline sync engine...")

	a, err := buildApp(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.controlTokens() == nil {
		logger.Warn("CONTROL_JWT_SECRET is empty - control channel runs without auth")
	}

	server := httpserver.NewServer(&httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		TLSCertFile:  cfg.Server.TLSCertFile,
		TLSKeyFile:   cfg.Server.TLSKeyFile,
		Upstream:     a.upstream,
	}, logger, httpserver.ServerDeps{
		Engine:         a.engine,
		Lifecycle:      a.lifecycle,
		Queue:          a.queue,
		Hub:            a.hub,
		Tokens:         a.controlTokens(),
		RateLimiter:    a.controlLimiter(),
		HealthCheckers: a.healthCheckers,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		installUntilDone(ctx, a)
	}()
	go func() {
		defer background.Done()
		a.monitor.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
		stop()
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	background.Wait()
	a.scheduler.Stop()
	a.dispatcher.Wait()
	a.engine.Wait()
	a.lifecycle.Retire()

	logger.Info("Server exited")
	return nil
}

// installUntilDone retries install on the probe interval: a first start
// without connectivity cannot seed the core assets. Once active it replays
// whatever an earlier run left queued.
func installUntilDone(ctx context.Context, a *app) {
	interval := a.cfg.Upstream.ProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for {
		_, err := a.engine.Install(ctx).Await(ctx)
		if err == nil {
			break
		}
		a.logger.WithError(err).Warn("Install failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
	if a.lifecycle.State() != ports.LifecycleActive {
		a.logger.Info("Installed; waiting for SKIP_WAITING to activate")
		if _, err := a.lifecycle.Await(ctx); err != nil {
			return
		}
	}
	a.wake(ctx)
}
