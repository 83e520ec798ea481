// Package app assembles the store, registry and front ends from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolhub/internal/config"
	"github.com/harun/toolhub/internal/metrics"
	"github.com/harun/toolhub/internal/observability"
	"github.com/harun/toolhub/internal/tracing"
	"github.com/harun/toolhub/pkg/cron"
	"github.com/harun/toolhub/pkg/gateway"
	"github.com/harun/toolhub/pkg/handler"
	"github.com/harun/toolhub/pkg/mcpserver"
	"github.com/harun/toolhub/pkg/sandbox"
	"github.com/harun/toolhub/pkg/server"
	"github.com/harun/toolhub/pkg/store"
	"github.com/harun/toolhub/pkg/toolexecutor"
	"github.com/harun/toolhub/pkg/watcher"
)

// App owns every long-lived component
type App struct {
	config  *config.Config
	version string
	logger  zerolog.Logger

	store    *store.SQLiteStore
	runLogs  *store.RunLogStore
	resolver *handler.Resolver
	runner   *sandbox.HostRunner
	registry *toolexecutor.Registry
	metrics  *metrics.Metrics
	audit    *observability.AuditLogger

	// Created by Start
	server    *server.Server
	gateway   *gateway.Server
	bridge    *mcpserver.Bridge
	scheduler *cron.Service
	watcher   *watcher.DefinitionsWatcher
	lifecycle *Lifecycle
	serveErr  chan error

	reseedMu       sync.Mutex
	mu             sync.RWMutex
	running        bool
	startTime      time.Time
	tracingEnabled bool
}

// Status describes a running app
type Status struct {
	Running   bool          `json:"running"`
	StartTime time.Time     `json:"start_time,omitempty"`
	Uptime    time.Duration `json:"uptime"`
}

// New opens the store, installs built-ins, seeds the definitions file and
// builds the registry. Front ends are created by Start.
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{
		config:  cfg,
		version: version,
		logger:  log.With().Str("component", "app").Logger(),
	}

	if cfg.Tracing.Enabled {
		err := tracing.Setup(tracing.Options{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			SampleRatio:    cfg.Tracing.SampleRatio,
		})
		if err != nil {
			a.logger.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			a.tracingEnabled = true
		}
	}

	if err := a.initialize(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initialize(ctx context.Context) error {
	cfg := a.config
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "toolhub.db")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st
	a.logger.Info().Str("path", cfg.DatabasePath).Msg("Store opened")

	installed, err := handler.InstallBuiltIns(ctx, st)
	if err != nil {
		return fmt.Errorf("failed to install built-ins: %w", err)
	}
	if installed.Handlers > 0 || installed.Tools > 0 {
		a.logger.Info().Int("handlers", installed.Handlers).Int("tools", installed.Tools).Msg("Built-ins installed")
	}

	if cfg.DefinitionsFile != "" {
		if _, err := a.seed(ctx, cfg.DefinitionsFile); err != nil {
			return err
		}
	}

	a.runLogs, err = store.NewRunLogStore(st.DB())
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}

	factories, err := handler.DefaultFactories()
	if err != nil {
		return fmt.Errorf("failed to register factories: %w", err)
	}
	a.resolver = handler.NewResolver(st, factories, cfg.HandlerCacheTTL())

	a.runner, err = sandbox.NewHostRunner(cfg.SandboxConfig())
	if err != nil {
		return fmt.Errorf("failed to create script runner: %w", err)
	}

	a.metrics = metrics.NewMetrics()

	if cfg.Audit.File == "" {
		a.audit = observability.NewAuditLogger(nil)
	} else {
		a.audit, err = observability.OpenAuditLogger(cfg.Audit.File, cfg.Logging.MaxSize, cfg.Logging.MaxAge, cfg.Logging.Compress)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	a.registry = toolexecutor.NewRegistry(st, handler.NewBuilder(a.resolver, a.runner), toolexecutor.Options{
		CacheTTL:     cfg.ToolCacheTTL(),
		Auditor:      toolexecutor.MultiAuditor{a.runLogs, a.metrics, a.audit},
		Invalidators: []toolexecutor.CacheInvalidator{a.resolver, a.metrics},
	})

	return nil
}

// seed loads path into the store
func (a *App) seed(ctx context.Context, path string) (store.SeedResult, error) {
	defs, err := store.LoadDefinitions(path)
	if err != nil {
		return store.SeedResult{}, err
	}
	res, err := store.Seed(ctx, a.store, defs)
	if err != nil {
		return res, fmt.Errorf("failed to seed %s: %w", path, err)
	}
	return res, nil
}

// Seed loads a definitions file and refreshes everything built from the
// old records
func (a *App) Seed(ctx context.Context, path string) (store.SeedResult, error) {
	a.reseedMu.Lock()
	defer a.reseedMu.Unlock()

	res, err := a.seed(ctx, path)
	if err != nil {
		return res, err
	}
	a.Refresh()
	return res, nil
}

// Refresh drops cached records and republishes tools to MCP and gateway
// clients
func (a *App) Refresh() {
	a.registry.Refresh()

	ctx := context.Background()
	discovery, err := a.registry.ListForDiscovery(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to list tools after refresh")
		return
	}
	a.metrics.ToolsRegistered.Set(float64(len(discovery)))

	a.syncBridge(ctx)

	a.mu.RLock()
	gw := a.gateway
	a.mu.RUnlock()
	if gw != nil {
		if _, err := gw.NotifyToolsChanged(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to notify gateway clients")
		}
	}
}

// gatewayRegistry makes tools.refresh resync MCP clients too. The gateway
// broadcasts tools.changed itself.
type gatewayRegistry struct {
	*toolexecutor.Registry
	app *App
}

func (g gatewayRegistry) Refresh() {
	g.Registry.Refresh()
	g.app.syncBridge(context.Background())
}

func (a *App) syncBridge(ctx context.Context) {
	a.mu.RLock()
	bridge := a.bridge
	a.mu.RUnlock()

	if bridge == nil {
		return
	}
	names, err := bridge.Sync(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to sync MCP tools")
		return
	}
	a.metrics.ToolsRegistered.Set(float64(len(names)))
}

// Start builds the front ends and background services and starts serving.
// It returns once the listener goroutine is running.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.startTime = time.Now()
	a.mu.Unlock()

	logger := a.logger.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Str("version", a.version).Msg("Starting toolhub")

	if err := a.startServices(ctx, logger); err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		a.stopServices(context.Background(), logger)
		return err
	}

	logger.Info().Str("addr", a.server.Addr()).Msg("Toolhub started")
	return nil
}

func (a *App) startServices(ctx context.Context, logger zerolog.Logger) error {
	cfg := a.config

	a.lifecycle = NewLifecycle(cfg.DataDir)
	if err := a.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle: %w", err)
	}

	bridge, err := a.Bridge(ctx)
	if err != nil {
		return err
	}

	gw, err := gateway.NewServer(gateway.Config{
		SharedSecret: cfg.Server.SharedSecret,
		TickInterval: 30 * time.Second,
		Registry:     gatewayRegistry{Registry: a.registry, app: a},
		Observer:     a.metrics,
		Logger:       log.With().Str("component", "gateway").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	gw.Start()

	srv, err := server.New(server.Options{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		SharedSecret:       cfg.Server.SharedSecret,
		ReadTimeout:        time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Metrics:            a.metrics.Handler(),
		SSE:                bridge.SSEHandler(),
		Gateway:            gw,
	}, a.registry, a.metrics, log.With().Str("component", "server").Logger())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	a.mu.Lock()
	a.gateway = gw
	a.server = srv
	a.mu.Unlock()

	if err := a.startScheduler(logger); err != nil {
		return err
	}

	if cfg.DefinitionsFile != "" && cfg.WatchDefinitions {
		w, err := watcher.New(watcher.Config{
			Path: cfg.DefinitionsFile,
			OnChange: func(path string) error {
				res, err := a.Seed(context.Background(), path)
				if err != nil {
					return err
				}
				logger.Info().Int("handlers", res.Handlers).Int("tools", res.Tools).Msg("Definitions reloaded")
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create definitions watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start definitions watcher: %w", err)
		}
		a.watcher = w
		logger.Info().Str("path", cfg.DefinitionsFile).Msg("Watching definitions file")
	}

	a.serveErr = make(chan error, 1)
	go func() {
		a.serveErr <- srv.Start()
	}()

	return nil
}

func (a *App) startScheduler(logger zerolog.Logger) error {
	cfg := a.config
	a.scheduler = cron.NewService(cron.ServiceOptions{
		OnEvent: func(evt cron.Event) {
			if evt.Action == cron.EventActionFinished && evt.Status == "error" {
				logger.Warn().Str("job", evt.JobName).Str("error", evt.Error).Msg("Scheduled job failed")
			}
		},
	})

	if cfg.Cache.RefreshSchedule != "" {
		if _, err := a.scheduler.AddJob(cron.AddParams{
			Name:        "registry-refresh",
			Description: "Drop cached tool and handler records",
			Enabled:     true,
			Schedule:    cron.CronSchedule(cfg.Cache.RefreshSchedule),
			Run:         cron.RefreshRegistry(a),
		}); err != nil {
			return fmt.Errorf("failed to schedule registry refresh: %w", err)
		}
	}

	if cfg.Audit.RetentionDays > 0 && cfg.Audit.PruneSchedule != "" {
		retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
		if _, err := a.scheduler.AddJob(cron.AddParams{
			Name:        "run-log-prune",
			Description: "Delete run logs past retention",
			Enabled:     true,
			Schedule:    cron.CronSchedule(cfg.Audit.PruneSchedule),
			Run: cron.PruneRunLogs(a.runLogs, retention, func(n int64) {
				a.metrics.RunLogsPrunedTotal.Add(float64(n))
			}),
		}); err != nil {
			return fmt.Errorf("failed to schedule run log pruning: %w", err)
		}
	}

	for _, job := range a.scheduler.ListJobs() {
		logger.Info().Str("job", job.Name).Str("schedule", job.Schedule.Expr).Msg("Job scheduled")
	}
	return nil
}

// Bridge returns the MCP bridge, creating and syncing it on first use
func (a *App) Bridge(ctx context.Context) (*mcpserver.Bridge, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bridge != nil {
		return a.bridge, nil
	}
	bridge, err := mcpserver.New(a.registry, a.version, log.With().Str("component", "mcp").Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP bridge: %w", err)
	}
	names, err := bridge.Sync(ctx)
	if err != nil {
		return nil, err
	}
	a.metrics.ToolsRegistered.Set(float64(len(names)))
	a.bridge = bridge
	return bridge, nil
}

// Stop shuts down the front ends and background services. The store
// stays open until Close.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is not running")
	}
	a.running = false
	a.mu.Unlock()

	logger := a.logger.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping toolhub")

	a.stopServices(ctx, logger)

	logger.Info().Msg("Toolhub stopped")
	return nil
}

func (a *App) stopServices(ctx context.Context, logger zerolog.Logger) {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop definitions watcher")
		}
		a.watcher = nil
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}

	a.mu.RLock()
	srv, gw := a.server, a.gateway
	a.mu.RUnlock()

	if gw != nil {
		if err := gw.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop gateway")
		}
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop HTTP server")
		}
	}

	if a.lifecycle != nil {
		if err := a.lifecycle.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop lifecycle")
		}
		a.lifecycle = nil
	}
}

// Close releases the store, audit file and tracer provider
func (a *App) Close() error {
	var errs []error
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, tracing.Shutdown(ctx))
		cancel()
		a.tracingEnabled = false
	}
	return errors.Join(errs...)
}

// Status returns the app status
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	status := Status{Running: a.running}
	if a.running {
		status.StartTime = a.startTime
		status.Uptime = time.Since(a.startTime)
	}
	return status
}

// Wait blocks until a signal arrives, ctx is done or the listener fails,
// then stops the app.
func (a *App) Wait(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case sig := <-sigChan:
		a.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-ctx.Done():
	case serveErr = <-a.serveErr:
		if serveErr != nil {
			a.logger.Error().Err(serveErr).Msg("HTTP server failed")
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// Config returns the configuration
func (a *App) Config() *config.Config {
	return a.config
}

// Registry returns the tool registry
func (a *App) Registry() *toolexecutor.Registry {
	return a.registry
}

// Store returns the record store
func (a *App) Store() store.Store {
	return a.store
}

// Resolver returns the handler resolver
func (a *App) Resolver() *handler.Resolver {
	return a.resolver
}

// RunLogs returns the run log store
func (a *App) RunLogs() *store.RunLogStore {
	return a.runLogs
}

// Metrics returns the metrics collector
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Server returns the HTTP server once started
func (a *App) Server() *server.Server {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.server
}

// Gateway returns the gateway once started
func (a *App) Gateway() *gateway.Server {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gateway
}
