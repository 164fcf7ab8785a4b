// Package events broadcasts the lifecycle of a write batch to registered hooks.
//
// Four points exist: before-batch (raw candidates, may veto), before-item-insert
// (one stamped valid document, may veto; all of them run before the first
// insert), after-item-insert (one persisted document) and after-batch (the
// documents actually persisted). Hooks run synchronously in registration
// order; hooks registered for every resource run before resource-specific ones.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/docgate/core/resolve"
	"github.com/rs/zerolog"
)

// Point names a lifecycle point.
type Point string

const (
	BeforeBatch      Point = "before-batch"
	BeforeItemInsert Point = "before-item-insert"
	AfterItemInsert  Point = "after-item-insert"
	AfterBatch       Point = "after-batch"
)

// Points lists every lifecycle point in firing order.
func Points() []Point {
	return []Point{BeforeBatch, BeforeItemInsert, AfterItemInsert, AfterBatch}
}

// Valid reports whether p is a known point.
func (p Point) Valid() bool {
	switch p {
	case BeforeBatch, BeforeItemInsert, AfterItemInsert, AfterBatch:
		return true
	}
	return false
}

// Event is what a hook receives. Which payload field is set depends on Point.
type Event struct {
	Point    Point
	Resource string

	// Candidates is the raw submitted batch (before-batch).
	Candidates []map[string]any

	// Document is the document being or just persisted (item points).
	Document map[string]any

	// Documents are the persisted documents (after-batch).
	Documents []map[string]any
}

// Handler processes an event. Returning an error vetoes at before-* points;
// after-* errors are reported but cannot undo persisted state.
type Handler func(ctx context.Context, event Event) error

// AnyResource registers a hook for every resource.
const AnyResource = ""

type key struct {
	point    Point
	resource string
}

// Registry holds hook registrations. Registration is append-only.
type Registry struct {
	mu       sync.RWMutex
	handlers map[key][]Handler
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		handlers: make(map[key][]Handler),
		logger:   logger,
	}
}

// On registers h at point for resource, or for every resource when resource is AnyResource.
func (r *Registry) On(point Point, resource string, h Handler) error {
	if !point.Valid() {
		return fmt.Errorf("unknown hook point %q", point)
	}
	if h == nil {
		return fmt.Errorf("nil handler for %s", point)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{point: point, resource: resource}
	r.handlers[k] = append(r.handlers[k], h)
	return nil
}

// Has reports whether any hook would run for point and resource.
func (r *Registry) Has(point Point, resource string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[key{point, AnyResource}]) > 0 ||
		(resource != AnyResource && len(r.handlers[key{point, resource}]) > 0)
}

// Fire runs the hooks for event.Point and event.Resource, stopping at the
// first error. Each hook receives its own copy of the payload.
func (r *Registry) Fire(ctx context.Context, event Event) error {
	r.mu.RLock()
	matched := append([]Handler(nil), r.handlers[key{event.Point, AnyResource}]...)
	if event.Resource != AnyResource {
		matched = append(matched, r.handlers[key{event.Point, event.Resource}]...)
	}
	r.mu.RUnlock()

	if len(matched) == 0 {
		return nil
	}

	r.logger.Debug().
		Str("point", string(event.Point)).
		Str("resource", event.Resource).
		Int("hooks", len(matched)).
		Msg("firing hooks")

	for i, h := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h(ctx, event.copy()); err != nil {
			return fmt.Errorf("%s hook %d: %w", event.Point, i, err)
		}
	}
	return nil
}

func (e Event) copy() Event {
	out := Event{Point: e.Point, Resource: e.Resource}
	if e.Document != nil {
		out.Document = resolve.CloneDocument(e.Document)
	}
	out.Candidates = copyDocuments(e.Candidates)
	out.Documents = copyDocuments(e.Documents)
	return out
}

func copyDocuments(docs []map[string]any) []map[string]any {
	if docs == nil {
		return nil
	}
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = resolve.CloneDocument(d)
	}
	return out
}
