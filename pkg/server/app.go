package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "TokenPulse/internal/middleware"
	icache "TokenPulse/internal/service/cache"
	"TokenPulse/internal/service/ratelimit"
	"TokenPulse/internal/usecase"
	pkgch "TokenPulse/pkg/clickhouse"
	"TokenPulse/pkg/config"
	xhttp "TokenPulse/pkg/http"
	applogger "TokenPulse/pkg/logger"
)

const janitorInterval = time.Minute

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	registry    *usecase.Registry
	pipeline    *mid.ArchivePipeline
	archiver    *usecase.Archiver
	cache       icache.BytesCache
	limiter     *ratelimit.Limiter
	chClient    *pkgch.Client
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New creates a new App instance with all dependencies. pipeline, archiver,
// cache, limiter and chClient may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	registry *usecase.Registry,
	pipeline *mid.ArchivePipeline,
	archiver *usecase.Archiver,
	cache icache.BytesCache,
	limiter *ratelimit.Limiter,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		l:           l,
		registry:    registry,
		pipeline:    pipeline,
		archiver:    archiver,
		cache:       cache,
		limiter:     limiter,
		chClient:    chClient,
		httpHandler: handler,
	}
}

// Registry exposes the monitored sessions.
func (a *App) Registry() *usecase.Registry { return a.registry }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done or the HTTP
// listener fails, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	if a.pipeline != nil {
		// the worker ends through Stop so queued transactions are drained
		a.pipeline.Start(context.WithoutCancel(ctx))
		a.l.Info("archive pipeline started", applogger.String("backend", a.archiver.Backend()))
	}

	// a session that cannot subscribe stays Disconnected with its error; the
	// others keep running
	if err := a.registry.StartAll(ctx); err != nil {
		a.l.Warn("some sessions failed to start", applogger.Error(err))
	}
	a.l.Info("monitor started", applogger.Strings("tokens", a.registry.Tokens()))

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(a.cfg.Server.SlowRequest),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath(a.cfg)),
		xhttp.WithLogger(a.l),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return errors.Join(err, a.shutdown())
	}

	go a.janitor(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err := <-a.httpServer.Err():
		runErr = fmt.Errorf("http server: %w", err)
	}
	return errors.Join(runErr, a.shutdown())
}

func metricsPath(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return ""
	}
	return cfg.Metrics.Path
}

// janitor drops expired cache entries and idle rate limit buckets.
func (a *App) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	ttl, _ := a.cache.(*icache.TTLCache)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ttl != nil {
				ttl.Sweep()
			}
			if a.limiter != nil {
				a.limiter.Sweep(10 * janitorInterval)
			}
		}
	}
}

// shutdown gracefully stops all services: HTTP first, then sessions, then the
// archive pipeline so transactions accepted before the stop are drained.
func (a *App) shutdown() error {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.registry.StopAll(ctx); err != nil {
		a.l.Warn("session stop error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.pipeline != nil {
		if err := a.pipeline.Stop(ctx); err != nil {
			a.l.Warn("archive pipeline stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.archiver != nil {
		a.archiver.Close()
	}

	if c, ok := a.cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
