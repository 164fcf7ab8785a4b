package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/artpar/docgate/config"
	"github.com/artpar/docgate/core/events"
	"github.com/artpar/docgate/core/rules"
	"github.com/rs/zerolog"
)

// HookSet dispatches the hooks declared in configuration. It installs one
// dispatcher per lifecycle point so a reload can swap the declared hooks
// without touching the append-only registry.
type HookSet struct {
	mu      sync.RWMutex
	entries []config.HookConfig
	audit   events.Handler
	rules   *rules.Engine
	logger  zerolog.Logger
}

// NewHookSet creates an empty hook set.
func NewHookSet(logger zerolog.Logger, idField string) *HookSet {
	return &HookSet{
		audit:  events.AuditHandler(logger, idField),
		rules:  rules.NewEngine(),
		logger: logger,
	}
}

// Install registers the dispatchers with registry.
func (h *HookSet) Install(registry *events.Registry) error {
	for _, point := range events.Points() {
		if err := registry.On(point, events.AnyResource, h.dispatch); err != nil {
			return err
		}
	}
	return nil
}

// Configure replaces the declared hooks.
func (h *HookSet) Configure(entries []config.HookConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append([]config.HookConfig(nil), entries...)
	h.rules.ClearCache()
	h.logger.Debug().Int("hooks", len(entries)).Msg("hooks configured")
}

// Len returns the number of declared hooks.
func (h *HookSet) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *HookSet) dispatch(ctx context.Context, event events.Event) error {
	h.mu.RLock()
	entries := h.entries
	h.mu.RUnlock()

	for _, e := range entries {
		if events.Point(e.Point) != event.Point {
			continue
		}
		if e.Resource != events.AnyResource && e.Resource != event.Resource {
			continue
		}
		matched, err := h.rules.Match(e.When, envFor(event))
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		if err := h.handler(e)(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// handler resolves a configured action; validation rejects unknown ones.
func (h *HookSet) handler(e config.HookConfig) events.Handler {
	switch e.Action {
	case "log":
		return h.audit
	case "reject":
		return func(context.Context, events.Event) error {
			if e.Message != "" {
				return errors.New(e.Message)
			}
			return fmt.Errorf("rejected by rule %q", e.When)
		}
	}
	return func(context.Context, events.Event) error { return nil }
}

func envFor(event events.Event) rules.Env {
	env := rules.Env{
		Resource: event.Resource,
		Point:    string(event.Point),
		Doc:      event.Document,
		Docs:     event.Documents,
	}
	if event.Point == events.BeforeBatch {
		env.Docs = event.Candidates
	}
	return env
}
