// Package server assembles the stock service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/garden-stock/internal/api"
	"github.com/JakeFAU/garden-stock/internal/clock"
	"github.com/JakeFAU/garden-stock/internal/config"
	collyfetcher "github.com/JakeFAU/garden-stock/internal/fetcher/colly"
	"github.com/JakeFAU/garden-stock/internal/fetcher/headless"
	"github.com/JakeFAU/garden-stock/internal/id"
	"github.com/JakeFAU/garden-stock/internal/metrics"
	"github.com/JakeFAU/garden-stock/internal/policy/ratelimit"
	"github.com/JakeFAU/garden-stock/internal/refresh"
	"github.com/JakeFAU/garden-stock/internal/scheduler"
	"github.com/JakeFAU/garden-stock/internal/stock"
	"github.com/JakeFAU/garden-stock/internal/storage/memory"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	store       *memory.SnapshotStore
	coordinator *refresh.Coordinator
	push        *scheduler.Push
	apiServer   *api.Server
	// browser is nil unless headless.enabled.
	browser *headless.Fetcher

	// baseCtx outlives individual requests; pull-through refreshes run under it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// Build creates the application's dependencies. fetcher may be nil, in which
// case a colly fetcher is built from cfg.
func Build(cfg config.Config, fetcher stock.Fetcher, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("source_url", cfg.Source.URL),
		zap.String("scheduler_mode", cfg.Scheduler.Mode),
		zap.Duration("refresh_interval", cfg.RefreshInterval()),
		zap.Float64("rate_limit_rps", cfg.HTTP.RateLimitRPS),
		zap.Bool("headless_enabled", cfg.Headless.Enabled),
	)

	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			Timeout:          cfg.FetchTimeout(),
			CloudflareBypass: cfg.HTTP.CloudflareBypass,
		}, logger.Named("fetcher"))
	}

	// Both fetchers hit the same host, so they share one limiter.
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RateLimitRPS,
		DefaultBurst: cfg.HTTP.RateLimitBurst,
	})
	fetcher = ratelimit.NewFetcher(fetcher, limiter)

	refreshCfg := refresh.Config{
		SourceURL:      cfg.Source.URL,
		CacheBustParam: cfg.Source.CacheBustParam,
	}
	var browser *headless.Fetcher
	if cfg.Headless.Enabled {
		var err error
		browser, err = headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Headless.UserAgent,
			NavigationTimeout: cfg.HeadlessNavTimeout(),
			ReadySelector:     cfg.Headless.ReadySelector,
			ReadyWait:         cfg.HeadlessReadyWait(),
		}, logger.Named("headless"))
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		refreshCfg.Renderer = ratelimit.NewFetcher(browser, limiter)
	}

	store := memory.NewSnapshotStore()
	coordinator, err := refresh.New(
		refreshCfg,
		fetcher,
		refresh.DecodeHTML,
		store,
		clock.New(),
		id.New(),
		refresh.NewPolicy(cfg.Refresh.MaxAttempts, cfg.BackoffInitial(), cfg.BackoffMax()),
		logger.Named("refresh"),
	)
	if err != nil {
		if browser != nil {
			browser.Close()
		}
		return nil, fmt.Errorf("refresh coordinator init failed: %w", err)
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	app := &App{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		coordinator: coordinator,
		browser:     browser,
		baseCtx:     baseCtx,
		cancelBase:  cancelBase,
	}

	var source api.SnapshotSource
	switch cfg.Scheduler.Mode {
	case config.ModePull:
		source = scheduler.NewPullThrough(
			baseCtx,
			coordinator,
			store,
			clock.New(),
			cfg.RefreshInterval(),
			logger.Named("scheduler"),
		)
	default:
		app.push = scheduler.NewPush(coordinator, store, cfg.RefreshInterval(), logger.Named("scheduler"))
		source = app.push
	}
	app.apiServer = api.NewServer(source, store, logger.Named("api"))
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Refresh runs one refresh outside of any schedule.
func (a *App) Refresh(ctx context.Context) (stock.Snapshot, error) {
	snapshot, err := a.coordinator.Refresh(ctx)
	if err != nil {
		return stock.Snapshot{}, fmt.Errorf("refresh: %w", err)
	}
	return snapshot, nil
}

// Run starts the application and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return a.Serve(ctx, listener)
}

// Serve runs the scheduler and HTTP server on listener until ctx is done.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if a.push == nil {
			return
		}
		a.push.Run(ctx)
	}()

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()
	<-schedulerDone
	a.logger.Info("shutdown complete")

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close abandons any in-flight pull-through refresh and stops the browser.
// It is safe to call more than once.
func (a *App) Close() {
	a.cancelBase()
	if a.browser != nil {
		a.browser.Close()
	}
}
