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

	"github.com/starford/mapforge/internal/api"
	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/buildservice"
	"github.com/starford/mapforge/internal/colorramp"
	"github.com/starford/mapforge/internal/dispatch"
	"github.com/starford/mapforge/internal/executor"
	"github.com/starford/mapforge/internal/fingerprint"
	"github.com/starford/mapforge/internal/mcpserver"
	"github.com/starford/mapforge/internal/models"
	"github.com/starford/mapforge/internal/planner"
	"github.com/starford/mapforge/internal/sse"
	"github.com/starford/mapforge/internal/storage"
	"github.com/starford/mapforge/internal/watch"
)

// Runtime is a wired mapforge instance: workspace, fingerprint store,
// planner, executor and build service.
type Runtime struct {
	cfg          *Config
	logger       *slog.Logger
	fs           *storage.FS
	store        fingerprint.Store
	pipelineFile string
	service      *buildservice.Service
}

// Open wires a Runtime from the given options. Callers must Close it.
func Open(opts ...Option) (*Runtime, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, apperr.Configf("config is required")
	}

	cfg := app.config
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}

	logger := app.logger
	if logger == nil {
		logger = NewLogger(cfg.App, app.stderr)
	}

	logger.Debug("Configuration loaded",
		slog.String("pipeline", cfg.Pipeline.File),
		slog.String("work_dir", cfg.Pipeline.WorkDir),
		slog.String("fingerprints", cfg.Fingerprints.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	fs, err := storage.NewFS(cfg.Pipeline.WorkDir)
	if err != nil {
		return nil, apperr.Configf("work dir: %v", err)
	}

	pipelineFile, err := filepath.Abs(cfg.Pipeline.File)
	if err != nil {
		return nil, apperr.Configf("pipeline file: %v", err)
	}

	var store fingerprint.Store
	switch cfg.Fingerprints.Backend {
	case BackendMemory:
		store = fingerprint.NewMemory()
	default:
		db, err := fingerprint.Open(fs.Resolve(cfg.Fingerprints.Path))
		if err != nil {
			return nil, fmt.Errorf("init fingerprint store: %w", err)
		}
		store = db
	}

	registry := dispatch.NewRegistry()
	dispatch.RegisterSkip(registry, logger)
	colorramp.Register(registry, fs)
	logger.Debug("in-process capabilities", slog.Any("names", registry.Names()))

	runner := app.runner
	if runner == nil {
		runner = executor.ShellRunner{
			Shell:  cfg.Executor.Shell,
			Dir:    fs.Root(),
			Stdout: app.stdout,
			Stderr: app.stderr,
		}
	}

	builder := planner.NewBuilder(fs, app.prober, logger)
	exec := executor.New(store, fs, registry, runner, logger)
	exec.StepTimeout = cfg.Executor.StepTimeout

	svc := buildservice.New(buildservice.FileLoader(pipelineFile), fs, builder, exec, store, logger)

	return &Runtime{
		cfg:          cfg,
		logger:       logger,
		fs:           fs,
		store:        store,
		pipelineFile: pipelineFile,
		service:      svc,
	}, nil
}

// NewLogger builds the structured logger described by cfg.
func NewLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

// Service exposes the build service.
func (rt *Runtime) Service() *buildservice.Service { return rt.service }

// Close releases the fingerprint store.
func (rt *Runtime) Close() error {
	return rt.store.Close()
}

// Build runs one build of t.
func (rt *Runtime) Build(ctx context.Context, t buildservice.Target) (*models.RunReport, error) {
	return rt.service.Build(ctx, t)
}

// Preview plans t and reports what a build would do, without running it.
func (rt *Runtime) Preview(ctx context.Context, t buildservice.Target) ([]models.PlanPreview, error) {
	return rt.service.Preview(ctx, t)
}

// Fingerprints lists the stored command fingerprints.
func (rt *Runtime) Fingerprints(ctx context.Context) ([]models.Fingerprint, error) {
	return rt.service.Fingerprints(ctx)
}

// Forget removes the fingerprint recorded for target.
func (rt *Runtime) Forget(ctx context.Context, target string) error {
	return rt.service.Forget(ctx, target)
}

// ServeMCP serves the read-only MCP tools over stdio until stdin closes.
func (rt *Runtime) ServeMCP(defaults buildservice.Target, version string) error {
	rt.logger.Info("MCP server starting", slog.String("transport", "stdio"))
	return mcpserver.New(rt.service, defaults, version).ServeStdio()
}

// watchList returns the files whose change triggers a rebuild: the source
// inputs of report plus the pipeline file.
func (rt *Runtime) watchList(report *models.RunReport) []string {
	return append(rt.service.SourceInputs(report), rt.pipelineFile)
}

// Watch builds t, then rebuilds it whenever a source input or the pipeline
// file changes. When app.http.port is set, a status API with an SSE stream
// of step events is served alongside. Step failures are logged and the
// watch continues; configuration errors in the first build are returned.
func (rt *Runtime) Watch(ctx context.Context, t buildservice.Target) error {
	cfg := rt.cfg
	logger := rt.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	rt.service.SetPublisher(broker)
	defer rt.service.SetPublisher(nil)

	report, err := rt.service.Build(ctx, t)
	if report == nil {
		return err
	}
	if err != nil {
		logger.Warn("initial build failed, watching for changes", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Rebuild on change.
	g.Go(func() error {
		return watch.Watch(gCtx, rt.watchList(report), cfg.Watch.Debounce, logger,
			func(ctx context.Context, _ []string) ([]string, error) {
				report, err := rt.service.Build(ctx, t)
				if report == nil {
					return nil, err
				}
				if err != nil {
					logger.Warn("rebuild failed", slog.String("error", err.Error()))
				}
				return rt.watchList(report), nil
			})
	})

	var httpServer *http.Server
	if cfg.App.HTTP.Enabled() {
		httpServer = &http.Server{
			Addr:    cfg.App.HTTP.Address(),
			Handler: rt.statusRouter(t, broker),
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

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
		cancel()

		if httpServer != nil {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Watch error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Watch stopped")
	return nil
}

// statusRouter builds the watch-mode HTTP handler.
func (rt *Runtime) statusRouter(t buildservice.Target, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, ok := rt.service.LastRun(); !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"building"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	t.Force = false
	r.Mount("/api", api.NewRouter(rt.service, t, rt.cfg.Auth.AuthEnabled(), rt.cfg.Auth.Token, broker))
	return r
}
