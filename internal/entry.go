// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/inneros/inneros/internal/api"
	"github.com/inneros/inneros/internal/daemon"
	"github.com/inneros/inneros/internal/enrich"
	"github.com/inneros/inneros/internal/handlers"
	"github.com/inneros/inneros/internal/health"
	"github.com/inneros/inneros/internal/index"
	"github.com/inneros/inneros/internal/mcpserver"
	"github.com/inneros/inneros/internal/metrics"
	"github.com/inneros/inneros/internal/noteservice"
	"github.com/inneros/inneros/internal/promote"
	"github.com/inneros/inneros/internal/ratelimit"
	"github.com/inneros/inneros/internal/scheduler"
	"github.com/inneros/inneros/internal/sse"
	"github.com/inneros/inneros/internal/storage"
	"github.com/inneros/inneros/internal/vault"
	"github.com/inneros/inneros/internal/watcher"
)

// core holds the components shared by the daemon and the one-shot commands.
type core struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *index.DB
	svc    *noteservice.Service
	coll   *metrics.Collector
	engine *promote.Engine
}

// buildCore initializes storage, the index, and the promotion engine.
// logOut receives the structured log stream.
func buildCore(cfg *Config, logOut io.Writer) (*core, error) {
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	coll := metrics.NewCollector()
	mover, err := vault.NewMover(cfg.Vault.Path, cfg.Vault.BackupDir, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init mover: %w", err)
	}

	return &core{
		cfg:    cfg,
		logger: logger,
		store:  store,
		db:     db,
		svc:    noteservice.NewService(store, db, logger),
		coll:   coll,
		engine: promote.NewEngine(store, db, mover, logger, coll),
	}, nil
}

// Run starts the automation daemon and the HTTP API.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	c, err := buildCore(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer c.db.Close()
	logger := c.logger

	logger.Info("configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	c.engine.SetNotify(broker.PublishLifecycleEvent)

	// Enrichment backend and feature handlers.
	client := enrich.NewClient(cfg.Enrichment.Endpoint, cfg.Enrichment.Model, cfg.Enrichment.Timeout(), logger)

	sched := scheduler.New(logger, c.coll)
	hm := health.NewManager(logger, c.coll)
	hm.Register(health.CheckerFunc{CheckName: "index", Fn: func() bool {
		_, err := c.db.CountByStatus()
		return err == nil
	}})

	d := daemon.New(cfg.Vault.Path, watcher.Config{
		Debounce:        cfg.FileWatching.Debounce(),
		IncludePatterns: cfg.FileWatching.IncludePatterns,
		IgnorePatterns:  cfg.FileWatching.IgnorePatterns,
	}, sched, hm, c.coll, logger, cfg.Daemon.ShutdownTimeout())

	if cfg.Handlers.Screenshot.Enabled {
		lim := ratelimit.New(cfg.Handlers.Screenshot.RateLimit.Limits(), logger, c.coll)
		d.AddHandler(handlers.NewScreenshot(c.svc, client, lim, c.coll, logger))
	}
	if cfg.Handlers.SmartLink.Enabled {
		lim := ratelimit.New(cfg.Handlers.SmartLink.RateLimit.Limits(), logger, c.coll)
		d.AddHandler(handlers.NewSmartLink(c.svc, client, handlers.NewHTMLTitleFetcher(), lim, c.coll, logger))
	}
	if cfg.Handlers.YouTube.Enabled {
		lim := ratelimit.New(cfg.Handlers.YouTube.RateLimit.Limits(), logger, c.coll)
		d.AddHandler(handlers.NewYouTube(c.svc, client, handlers.NewTimedTextFetcher(), lim, c.coll, logger))
	}

	// Keep the index and event stream current on every accepted event,
	// ahead of the debounced handler dispatch.
	d.SetOnChange(func(op fsnotify.Op, rel string) {
		switch {
		case op&(fsnotify.Remove|fsnotify.Rename) != 0:
			if err := c.svc.RemoveFromIndex(rel); err != nil {
				logger.Warn("index delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			}
			broker.PublishLifecycleEvent(sse.KindDeleted, rel)
		default:
			data, err := c.store.Read(rel)
			if err != nil {
				return
			}
			if err := c.svc.IndexFile(rel, data); err != nil {
				logger.Warn("index update failed", slog.String("path", rel), slog.String("error", err.Error()))
				return
			}
			kind := sse.KindUpdated
			if op&fsnotify.Create != 0 {
				kind = sse.KindCreated
			}
			broker.PublishLifecycleEvent(kind, rel)
		}
	})

	// Scheduled jobs from config.
	for _, job := range cfg.Daemon.Jobs {
		fn, ok := jobFunc(job.Name, c, broker)
		if !ok {
			logger.Warn("unknown scheduled job, skipping", slog.String("job", job.Name))
			continue
		}
		if err := sched.Define(job.Name, job.Schedule, job.Enabled, fn); err != nil {
			return fmt.Errorf("define job %s: %w", job.Name, err)
		}
	}

	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	// HTTP router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		rep := hm.Report()
		w.Header().Set("Content-Type", "application/json")
		if !rep.IsHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(rep)
	})
	r.Handle("/metrics", promhttp.HandlerFor(c.coll.Registry(), promhttp.HandlerOpts{}))

	r.Mount("/api", api.NewRouter(c.svc, c.engine, d, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
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
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// jobFunc maps a configured job name to its implementation.
func jobFunc(name string, c *core, broker *sse.Broker) (scheduler.JobFunc, bool) {
	switch name {
	case "auto_promote":
		return func() error {
			res, err := c.engine.AutoPromoteReadyNotes(context.Background(), promote.Options{
				QualityThreshold: c.cfg.Enrichment.QualityThreshold,
			})
			outcome := "success"
			if err != nil || (res != nil && res.Errored > 0) {
				outcome = "failure"
			}
			broker.PublishJobEvent(name, outcome)
			return err
		}, true
	case "index_sync":
		return func() error {
			err := index.Sync(c.db, c.store, c.logger)
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			broker.PublishJobEvent(name, outcome)
			return err
		}, true
	default:
		return nil, false
	}
}

// RunPromote executes a one-shot promotion run and writes the JSON result
// to out. The returned result lets the caller derive the exit code.
func RunPromote(ctx context.Context, cfg *Config, dryRun bool, threshold float64, out io.Writer) (*promote.Result, error) {
	c, err := buildCore(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	defer c.db.Close()

	res, err := c.engine.AutoPromoteReadyNotes(ctx, promote.Options{
		DryRun:           dryRun,
		QualityThreshold: threshold,
	})
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return res, err
	}
	return res, nil
}

// RunStatus writes the vault's lifecycle status distribution to out.
func RunStatus(ctx context.Context, cfg *Config, out io.Writer) error {
	c, err := buildCore(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer c.db.Close()

	counts, err := c.svc.CountByStatus(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"total":     total,
		"by_status": counts,
	})
}

// RunMCP serves the MCP stdio server over the vault.
func RunMCP(cfg *Config) error {
	c, err := buildCore(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer c.db.Close()

	return mcpserver.New(c.store, c.db, c.engine).ServeStdio()
}
