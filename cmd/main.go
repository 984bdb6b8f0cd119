package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/okian/nback/internal/adapters/http/api"
	"github.com/okian/nback/internal/adapters/http/swagger"
	"github.com/okian/nback/internal/adapters/identity"
	"github.com/okian/nback/internal/adapters/repository"
	app "github.com/okian/nback/internal/app"
	"github.com/okian/nback/internal/config"
	"github.com/okian/nback/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// Use stderr since the logger may not be available yet
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.StoreDriver),
			logger.Bool("anonymous", cfg.AllowAnonymous),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildService opens the configured session log, migrates it when asked and starts the service.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	store, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN(),
		repository.WithTimeout(cfg.StoreTimeout()),
		repository.WithLogger(log.Named("repository")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
	}

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithLog(store),
		app.WithDedupeSize(cfg.IdempotencyCacheSize),
		app.WithLeaderboardLimits(cfg.DefaultLeaderboardLimit, cfg.MaxLeaderboardLimit),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to start service: %w", err)
	}

	if cfg.AutoMigrate {
		if _, err := svc.Migrate(ctx); err != nil {
			svc.Stop()
			return nil, fmt.Errorf("failed to migrate %s store: %w", cfg.StoreDriver, err)
		}
	} else if err := svc.Ping(ctx); err != nil {
		log.Warn(ctx, "session store not reachable at startup", logger.Error(err))
	}
	return svc, nil
}

// newRouter registers the API and docs routes.
func newRouter(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) http.Handler {
	if cfg.JWTSecret == "" && !cfg.AllowAnonymous {
		log.Warn(ctx, "jwt_secret is empty and anonymous submissions are disabled; every submit will be rejected")
	}

	r := chi.NewRouter()
	api.NewServer(svc,
		api.WithVerifier(identity.NewVerifier(cfg.JWTSecret)),
		api.WithAnonymousSubmissions(cfg.AllowAnonymous),
		api.WithAdminToken(cfg.AdminToken),
		api.WithServerLogger(log.Named("http")),
	).Register(ctx, r)
	swagger.Register(ctx, r)
	return r
}
