// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tagshelf/internal/api"
	"github.com/starford/tagshelf/internal/catalog"
	"github.com/starford/tagshelf/internal/flagstore"
	"github.com/starford/tagshelf/internal/inbox"
	"github.com/starford/tagshelf/internal/mcpserver"
	"github.com/starford/tagshelf/internal/session"
	"github.com/starford/tagshelf/internal/sse"
	"github.com/starford/tagshelf/internal/storage"
	"github.com/starford/tagshelf/internal/store"
	"github.com/starford/tagshelf/internal/tagservice"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) logger(defaultOut io.Writer) *slog.Logger {
	out := a.logOutput
	if out == nil {
		out = defaultOut
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// components is the wired service graph shared by every entry point.
type components struct {
	db      *store.DB
	flags   *flagstore.Store
	files   *storage.FS
	catalog *catalog.Catalog
	session *session.Session
	svc     *tagservice.Service
	logger  *slog.Logger
}

// open builds the components. The session is not started yet so callers can
// register listeners first.
func open(ctx context.Context, cfg *Config, logger *slog.Logger) (*components, error) {
	if err := os.MkdirAll(cfg.Exchange.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create exchange dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Exchange.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	cat, err := loadCatalog(cfg.Catalog.Path, logger)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db := store.New(cfg.Store.Path, logger)
	if err := db.Open(ctx); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	if cfg.State.Path != "" {
		if err := os.MkdirAll(cfg.State.Path, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	flags, err := flagstore.Open(cfg.State.Path, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	sess := session.New(db, flags, logger, session.WithStarter(cat.StarterDocument))
	svc := tagservice.NewService(db, sess, logger,
		tagservice.WithFiles(files),
		tagservice.WithCatalog(cat))

	return &components{
		db:      db,
		flags:   flags,
		files:   files,
		catalog: cat,
		session: sess,
		svc:     svc,
		logger:  logger,
	}, nil
}

// loadCatalog reads the catalog file. A missing file is not an error; the
// store then bootstraps an empty default library.
func loadCatalog(path string, logger *slog.Logger) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Empty(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warn("catalog file not found, continuing without starter documents",
			slog.String("path", path))
		return catalog.Empty(), nil
	}
	files, err := storage.NewFS(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("init catalog storage: %w", err)
	}
	return catalog.Load(files, filepath.Base(path))
}

func (c *components) close() {
	if err := c.flags.Close(); err != nil {
		c.logger.Warn("flag store close failed", slog.String("error", err.Error()))
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("store close failed", slog.String("error", err.Error()))
	}
}

// Run starts the HTTP API, the SSE broker and the inbox watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger(os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("state_path", cfg.State.Path),
		slog.String("exchange_path", cfg.Exchange.Path),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	// SSE broker.
	broker := sse.NewBroker(cfg.App.SSEThrottle)
	defer broker.Close()
	c.session.OnChange(broker.SessionListener())
	c.svc.OnEvent(broker.ServiceListener())

	if err := c.session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health probes are also served at the root for orchestrators.
	health := api.NewHandler(c.svc)
	r.Get("/health/live", health.Live)
	r.Get("/health/ready", health.Ready)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Inbox watcher.
	if cfg.Exchange.Watch {
		w := inbox.New(c.files, cfg.Exchange.Inbox, c.svc, c.flags, logger)
		g.Go(func() error {
			if err := w.Sync(gCtx); err != nil {
				logger.Warn("initial inbox sync failed", slog.String("error", err.Error()))
			}
			return w.Run(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams only end when their clients go away.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the inbox watcher when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown requested")

// RunMCP serves the MCP tools on stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger(os.Stderr)

	c, err := open(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	return mcpserver.New(c.svc, app.version).ServeStdio()
}
