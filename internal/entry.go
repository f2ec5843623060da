// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/api"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/catalogservice"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/index"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/mcpserver"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/sse"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/storage"
)

// runtime holds the components shared by the HTTP and MCP front ends.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  storage.Provider
	db     *index.DB
	svc    *catalogservice.Service
}

func setup(ctx context.Context, opts []Option) (*runtime, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("catalogs_path", cfg.Catalogs.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("strict", cfg.Schema.Strict),
		slog.Int("workers", cfg.Schema.Workers),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Catalogs.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create catalogs dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Catalogs.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	svc := catalogservice.NewService(store, db,
		catalogservice.WithLogger(logger),
		catalogservice.WithStrict(cfg.Schema.Strict),
		catalogservice.WithWorkers(cfg.Schema.Workers),
		catalogservice.WithFormatOverrides(cfg.Formatting.Overrides()),
	)

	// A failed sync leaves the service unready; the watcher still picks up
	// later changes.
	if err := svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &runtime{cfg: cfg, logger: logger, store: store, db: db, svc: svc}, nil
}

func (rt *runtime) watch(ctx context.Context, cb index.EventCallback) error {
	err := index.Watch(ctx, rt.db, rt.store, rt.cfg.Catalogs.Path, rt.logger, rt.svc, cb)
	if err != nil {
		rt.logger.Error("watcher stopped", slog.String("error", err.Error()))
	}
	return nil
}

func healthHandler(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"syncing"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Run starts the HTTP API with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	cfg, logger := rt.cfg, rt.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthHandler(nil))
	r.Get("/health/ready", healthHandler(rt.svc.Ready))

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.watch(gCtx, broker.PublishCatalogEvent)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the catalog tools over stdio until the client disconnects.
// The watcher keeps the catalogs current while the session is open.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.watch(gCtx, nil)
	})
	g.Go(func() error {
		defer cancel()
		rt.logger.Info("MCP server listening on stdio")
		return mcpserver.New(rt.svc, nil).ServeStdio()
	})

	return g.Wait()
}
