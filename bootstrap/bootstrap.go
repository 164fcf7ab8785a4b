// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file (with DOCGATE_* overrides) or, when no
// file exists, from the environment alone.
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/docgate/adapters/auth"
	"github.com/artpar/docgate/adapters/clock"
	apihttp "github.com/artpar/docgate/adapters/http"
	"github.com/artpar/docgate/adapters/idgen"
	"github.com/artpar/docgate/adapters/metrics"
	apitls "github.com/artpar/docgate/adapters/tls"
	"github.com/artpar/docgate/config"
	"github.com/artpar/docgate/core/events"
	"github.com/artpar/docgate/core/pipeline"
	"github.com/artpar/docgate/core/schema"
	"github.com/artpar/docgate/core/storage"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Store      storage.Store
	Pipeline   *pipeline.Coordinator
	Hooks      *HookSet
	Metrics    *metrics.Collector
	HTTPServer *http.Server
	TLS        *apitls.Provider

	// plainServer answers ACME challenges and redirects to HTTPS.
	plainServer *http.Server

	holder *config.Holder
	mu     sync.Mutex // serializes reloads
}

// Options provides optional configuration for application initialization.
type Options struct {
	// ConfigPath is the YAML config file. When it does not exist the
	// configuration is read from DOCGATE_* environment variables.
	ConfigPath string

	// Watch reloads resources and hooks when the config file, a resource
	// file or SIGHUP signals a change.
	Watch bool

	// Version is reported by /version.
	Version string
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	cfg, err := config.LoadWithFallback(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger := SetupLogger(cfg.Logging)
	logger.Info().Str("resources", cfg.Resources.Dir).Msg("initializing docgate")

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	if err := a.initPipeline(context.Background()); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.initHTTPServer(opts.Version); err != nil {
		a.Close()
		return nil, err
	}

	if opts.Watch {
		if err := a.watch(opts.ConfigPath); err != nil {
			logger.Warn().Err(err).Msg("hot reload disabled")
		}
	}

	return a, nil
}

// watch reloads on config file changes, resource file changes and SIGHUP.
func (a *App) watch(path string) error {
	if path == "" {
		return fmt.Errorf("no config file to watch")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}

	holder, err := config.NewHolder(path, a.Logger)
	if err != nil {
		return err
	}
	a.holder = holder

	holder.OnChange(func(next *config.Config) {
		if err := a.Reload(next); err != nil {
			a.Logger.Error().Err(err).Msg("reload failed, keeping previous resources")
		}
	})
	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("file watching disabled")
	}
	holder.WatchSignals()
	return nil
}

// initPipeline opens the store, loads resources and builds the coordinator.
func (a *App) initPipeline(ctx context.Context) error {
	cfg := a.Config
	settings := cfg.Documents.Settings()

	store, err := OpenStore(cfg.Database, settings.Names.ID)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.Store = store

	domain, err := LoadDomain(ctx, cfg.Resources.Dir, store)
	if err != nil {
		return err
	}

	ids, err := idgen.New(cfg.Documents.IDGenerator)
	if err != nil {
		return err
	}

	registry := events.NewRegistry(a.Logger)
	a.Hooks = NewHookSet(a.Logger, settings.Names.ID)
	if err := a.Hooks.Install(registry); err != nil {
		return err
	}
	a.Hooks.Configure(cfg.Hooks)

	opts := pipeline.Options{
		Settings: settings,
		IDs:      ids,
		Clock:    clock.Real{},
		Hooks:    registry,
		Logger:   a.Logger,
	}
	if a.Metrics != nil {
		opts.Metrics = a.Metrics
	}

	coord, err := pipeline.New(domain, store, opts)
	if err != nil {
		return err
	}
	a.Pipeline = coord

	a.Logger.Info().
		Int("resources", len(domain)).
		Str("driver", cfg.Database.Driver).
		Msg("pipeline ready")
	return nil
}

func (a *App) initHTTPServer(version string) error {
	cfg := a.Config

	authenticator, err := auth.New(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if authenticator != nil {
		a.Logger.Info().Str("scheme", authenticator.Scheme()).Msg("write authentication enabled")
	}

	router := apihttp.NewRouter(a.Pipeline, a.Logger, apihttp.RouterConfig{
		Metrics:       a.Metrics,
		MetricsPath:   cfg.Metrics.Path,
		EnableOpenAPI: cfg.OpenAPI.Enabled,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		BatchTimeout:  cfg.Database.Timeout,
		Version:       version,
		Auth:          authenticator,
	})

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	provider, err := apitls.New(cfg.Server.TLS, a.Logger)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if provider == nil {
		return nil
	}
	a.TLS = provider
	a.HTTPServer.TLSConfig = provider.TLSConfig()

	if cfg.Server.TLS.HTTPAddr != "" {
		a.plainServer = &http.Server{
			Addr:         cfg.Server.TLS.HTTPAddr,
			Handler:      provider.HTTPHandler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}
	return nil
}

// OpenStore opens the configured document store.
func OpenStore(cfg config.DatabaseConfig, idField string) (storage.Store, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryStore(idField), nil
	case "sqlite", "":
		store, err := storage.NewSQLiteStore(cfg.DSN, storage.SQLiteOptions{
			IDField:     idField,
			Synchronous: cfg.Synchronous,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// LoadDomain parses every resource under dir and prepares storage for it.
func LoadDomain(ctx context.Context, dir string, store storage.Store) (schema.Domain, error) {
	domain, err := schema.ParseDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	for _, name := range domain.Names() {
		if err := store.EnsureResource(ctx, domain[name]); err != nil {
			return nil, fmt.Errorf("prepare resource %s: %w", name, err)
		}
	}
	return domain, nil
}

// Reload applies the reloadable parts of cfg: resources, hooks and log level.
// On error the previous resources stay active.
func (a *App) Reload(cfg *config.Config) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Metrics != nil {
		defer func() { a.Metrics.ConfigReloaded(err) }()
	}

	if level, lerr := zerolog.ParseLevel(cfg.Logging.Level); lerr == nil {
		zerolog.SetGlobalLevel(level)
	}

	domain, err := LoadDomain(context.Background(), cfg.Resources.Dir, a.Store)
	if err != nil {
		return err
	}
	a.Pipeline.UpdateDomain(domain)
	a.Hooks.Configure(cfg.Hooks)
	a.Config = cfg

	a.Logger.Info().
		Int("resources", len(domain)).
		Int("hooks", len(cfg.Hooks)).
		Msg("resources reloaded")
	return nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a server error.
func (a *App) Run() error {
	errCh := make(chan error, 2)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Bool("tls", a.TLS != nil).
			Msg("starting http server")
		var err error
		if a.TLS != nil {
			err = a.HTTPServer.ListenAndServeTLS("", "")
		} else {
			err = a.HTTPServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if a.plainServer != nil {
		go func() {
			a.Logger.Info().Str("addr", a.plainServer.Addr).Msg("starting plain http listener")
			if err := a.plainServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Close()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown drains the HTTP server and releases resources.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, srv := range []*http.Server{a.HTTPServer, a.plainServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Str("addr", srv.Addr).Msg("http server shutdown error")
		}
	}

	a.Close()
	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// Close stops watchers and closes the store.
func (a *App) Close() {
	if a.holder != nil {
		a.holder.Stop()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("store close error")
		}
	}
}

// SetupLogger builds the process logger and sets the global level.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
