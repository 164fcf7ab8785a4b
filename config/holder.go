package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload support.
// A reload is triggered by edits to the config file, by edits to resource
// definitions under resources.dir, or by SIGHUP.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := &Holder{
		config: cfg,
		path:   absPath,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	return h, nil
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Path returns the absolute path of the config file.
func (h *Holder) Path() string {
	return h.path
}

// Reload reloads the configuration from disk and notifies listeners.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	listeners := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	// Log what changed
	h.logChanges(oldCfg, newCfg)

	// Notify listeners
	for _, fn := range listeners {
		fn(newCfg)
	}

	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile starts watching the config file and the resources directory.
// Changes trigger automatic reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory (more reliable for editors that do atomic saves)
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	if resDir := h.resourcesDir(); resDir != "" && resDir != dir {
		if err := watcher.Add(resDir); err != nil {
			h.logger.Warn().Err(err).Str("dir", resDir).Msg("cannot watch resources directory")
		}
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload config")
}

// Stop stops watching for file changes and signals.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

// resourcesDir resolves resources.dir relative to the config file.
func (h *Holder) resourcesDir() string {
	dir := h.Get().Resources.Dir
	if dir == "" {
		return ""
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(h.path), dir)
	}
	return filepath.Clean(dir)
}

// relevant reports whether a file event should trigger a reload.
func (h *Holder) relevant(name string) bool {
	if filepath.Clean(name) == h.path {
		return true
	}
	resDir := h.resourcesDir()
	if resDir == "" || filepath.Dir(filepath.Clean(name)) != resDir {
		return false
	}
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func (h *Holder) watchLoop() {
	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			if !h.relevant(event.Name) {
				continue
			}

			// React to write, create (atomic save) or removal of a resource file
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("watched file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	live, restart := ChangedFields(old, new)

	if len(live) > 0 {
		h.logger.Info().
			Strs("fields", live).
			Str("log_level", new.Logging.Level).
			Int("hooks", len(new.Hooks)).
			Msg("live settings changed")
	}

	if len(restart) > 0 {
		h.logger.Warn().
			Strs("fields", restart).
			Msg("settings changed, restart required to apply")
	}
}

type fieldCheck struct {
	name    string
	changed func(old, new *Config) bool
}

var reloadable = []fieldCheck{
	{"resources.dir", func(o, n *Config) bool { return o.Resources.Dir != n.Resources.Dir }},
	{"hooks", func(o, n *Config) bool { return !reflect.DeepEqual(o.Hooks, n.Hooks) }},
	{"logging.level", func(o, n *Config) bool { return o.Logging.Level != n.Logging.Level }},
}

var nonReloadable = []fieldCheck{
	{"server.host", func(o, n *Config) bool { return o.Server.Host != n.Server.Host }},
	{"server.port", func(o, n *Config) bool { return o.Server.Port != n.Server.Port }},
	{"server.timeouts", func(o, n *Config) bool {
		return o.Server.ReadTimeout != n.Server.ReadTimeout || o.Server.WriteTimeout != n.Server.WriteTimeout
	}},
	{"server.max_body_bytes", func(o, n *Config) bool { return o.Server.MaxBodyBytes != n.Server.MaxBodyBytes }},
	{"server.tls", func(o, n *Config) bool { return !reflect.DeepEqual(o.Server.TLS, n.Server.TLS) }},
	{"auth", func(o, n *Config) bool { return !reflect.DeepEqual(o.Auth, n.Auth) }},
	{"database", func(o, n *Config) bool { return o.Database != n.Database }},
	{"documents", func(o, n *Config) bool {
		return o.Documents.Settings() != n.Documents.Settings() || o.Documents.IDGenerator != n.Documents.IDGenerator
	}},
	{"logging.format", func(o, n *Config) bool { return o.Logging.Format != n.Logging.Format }},
	{"metrics", func(o, n *Config) bool { return o.Metrics != n.Metrics }},
	{"openapi", func(o, n *Config) bool { return o.OpenAPI != n.OpenAPI }},
}

// ChangedFields compares two configurations and splits the changed fields
// into those applied live and those that need a restart.
func ChangedFields(old, new *Config) (live, restart []string) {
	for _, f := range reloadable {
		if f.changed(old, new) {
			live = append(live, f.name)
		}
	}
	for _, f := range nonReloadable {
		if f.changed(old, new) {
			restart = append(restart, f.name)
		}
	}
	return live, restart
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return fieldNames(reloadable)
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return fieldNames(nonReloadable)
}

func fieldNames(checks []fieldCheck) []string {
	names := make([]string, len(checks))
	for i, f := range checks {
		names[i] = f.name
	}
	return names
}
