// Package pipeline coordinates batch inserts: resolution, validation,
// stamping, persistence and lifecycle hooks, with per-document outcomes.
//
// A batch commits partially. Every valid document is persisted on its own;
// invalid ones never reach storage. The report always lists outcomes in
// submission order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/events"
	"github.com/artpar/docgate/core/resolve"
	"github.com/artpar/docgate/core/schema"
	"github.com/artpar/docgate/core/stamp"
	"github.com/artpar/docgate/core/storage"
	"github.com/artpar/docgate/core/validation"
	"github.com/artpar/docgate/ports"
	"github.com/rs/zerolog"
)

var (
	// ErrEmptyBatch is returned for a batch with no documents.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrUnknownResource is returned for a resource missing from the domain.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrReadOnlyResource is returned for writes to a read-only resource.
	ErrReadOnlyResource = errors.New("resource is read-only")
)

// HookError is a veto from a before-* hook, or a failure of an after-* hook
// recorded as a warning.
type HookError struct {
	Point events.Point
	Index int // batch position, -1 for batch-level points
	Err   error
}

func (e *HookError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s hook failed: %v", e.Point, e.Err)
	}
	return fmt.Sprintf("%s hook failed for document %d: %v", e.Point, e.Index, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// Options configures a Coordinator. IDs and Clock are required.
type Options struct {
	Settings convention.Settings
	IDs      ports.IDGenerator
	Clock    ports.Clock
	Hooks    *events.Registry
	Metrics  Metrics
	Logger   zerolog.Logger
}

// Coordinator runs batch inserts against one store.
type Coordinator struct {
	mu     sync.RWMutex
	domain schema.Domain

	store     storage.Store
	validator *validation.Validator
	stamper   *stamp.Stamper
	hooks     *events.Registry
	metrics   Metrics
	settings  convention.Settings
	logger    zerolog.Logger
}

// New creates a coordinator for domain backed by store.
func New(domain schema.Domain, store storage.Store, opts Options) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if opts.IDs == nil || opts.Clock == nil {
		return nil, errors.New("pipeline: id generator and clock are required")
	}

	settings := opts.Settings.WithDefaults()
	hooks := opts.Hooks
	if hooks == nil {
		hooks = events.NewRegistry(opts.Logger)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Coordinator{
		domain:    domain,
		store:     store,
		validator: validation.New(store, settings, opts.Logger),
		stamper:   stamp.New(opts.IDs, opts.Clock, settings.Names),
		hooks:     hooks,
		metrics:   metrics,
		settings:  settings,
		logger:    opts.Logger,
	}, nil
}

// UpdateDomain swaps the resource definitions used by later batches.
func (c *Coordinator) UpdateDomain(domain schema.Domain) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.domain = domain
}

// Resource returns the current definition of a resource.
func (c *Coordinator) Resource(name string) (schema.Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.domain.Get(name)
}

// Domain returns the current resource definitions.
func (c *Coordinator) Domain() schema.Domain {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.domain
}

// Settings returns the settings the coordinator stamps and validates with.
func (c *Coordinator) Settings() convention.Settings {
	return c.settings
}

// Hooks returns the registry fired around inserts.
func (c *Coordinator) Hooks() *events.Registry {
	return c.hooks
}

// Insert validates candidates and persists the valid ones.
//
// Batch-level failures (ErrEmptyBatch, a cyclic schema, a before-batch or
// before-item-insert veto) happen before the first insert and return no
// report. A storage failure or a cancelled context during inserts stops the
// batch; the returned report then covers the documents whose outcome was
// final, and documents already persisted stay.
func (c *Coordinator) Insert(ctx context.Context, resource string, candidates []map[string]any) (*Report, error) {
	start := time.Now()

	res, ok := c.Resource(resource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	if res.ReadOnly {
		return nil, fmt.Errorf("%w: %s", ErrReadOnlyResource, resource)
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyBatch
	}

	plan, err := resolve.NewPlan(res.Schema)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", resource, err)
	}

	if err := c.hooks.Fire(ctx, events.Event{
		Point:      events.BeforeBatch,
		Resource:   resource,
		Candidates: candidates,
	}); err != nil {
		c.metrics.HookFailed(resource, events.BeforeBatch)
		return nil, &HookError{Point: events.BeforeBatch, Index: -1, Err: err}
	}

	report := newReport(resource, candidates)
	resolved, err := c.validate(ctx, res, plan, report)
	if err == nil {
		var docs []staged
		docs, err = c.stage(ctx, res, resolved)
		if err != nil {
			c.metrics.BatchCompleted(resource, resultLabel(err), time.Since(start))
			c.logger.Warn().
				Err(err).
				Str("resource", resource).
				Int("batch", len(candidates)).
				Msg("batch aborted before persistence")
			return nil, err
		}
		err = c.persist(ctx, res, docs, report)
	}

	if err != nil {
		c.metrics.BatchCompleted(resource, resultLabel(err), time.Since(start))
		c.logger.Warn().
			Err(err).
			Str("resource", resource).
			Int("batch", len(candidates)).
			Int("committed", len(report.Committed)).
			Msg("batch stopped")
		return report, err
	}

	if err := c.hooks.Fire(ctx, events.Event{
		Point:     events.AfterBatch,
		Resource:  resource,
		Documents: report.Committed,
	}); err != nil {
		c.warn(report, &HookError{Point: events.AfterBatch, Index: -1, Err: err})
	}

	c.metrics.BatchCompleted(resource, report.Status().String(), time.Since(start))
	c.logger.Info().
		Str("resource", resource).
		Int("batch", len(candidates)).
		Int("committed", len(report.Committed)).
		Dur("duration", time.Since(start)).
		Msg("batch inserted")

	return report, nil
}

// validate resolves and validates every candidate in submission order.
// It returns the resolved documents, nil at rejected positions.
func (c *Coordinator) validate(ctx context.Context, res schema.Resource, plan *resolve.Plan, report *Report) ([]map[string]any, error) {
	session := c.validator.Session(res)
	resolved := make([]map[string]any, len(report.Outcomes))

	for i := range report.Outcomes {
		if err := ctx.Err(); err != nil {
			report.truncate(i)
			return nil, err
		}

		doc := plan.Apply(report.Outcomes[i].Submitted)
		issues, err := session.Validate(ctx, doc)
		if err != nil {
			report.truncate(i)
			c.metrics.PersistenceFailed(res.Name)
			return nil, &storage.PersistenceError{Resource: res.Name, Index: i, Err: err}
		}

		if !issues.Valid() {
			report.Outcomes[i].State = Rejected
			report.Outcomes[i].Issues = issues
			c.metrics.DocumentRejected(res.Name)
			continue
		}
		resolved[i] = doc
	}

	return resolved, nil
}

// staged is a stamped document cleared by every before-item-insert hook.
type staged struct {
	index int
	doc   map[string]any
	stamp stamp.Stamp
}

// stage stamps every valid document and runs the before-item-insert hooks
// over all of them. Nothing is persisted yet, so a veto aborts the batch.
func (c *Coordinator) stage(ctx context.Context, res schema.Resource, resolved []map[string]any) ([]staged, error) {
	_, clientID := res.Schema[c.settings.Names.ID]
	out := make([]staged, 0, len(resolved))

	for i, doc := range resolved {
		if doc == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		st, err := c.stamper.Stamp(doc, clientID)
		if err != nil {
			return nil, &storage.PersistenceError{Resource: res.Name, Index: i, Err: err}
		}
		persisted := c.stamper.Apply(doc, st)

		if err := c.hooks.Fire(ctx, events.Event{
			Point:    events.BeforeItemInsert,
			Resource: res.Name,
			Document: persisted,
		}); err != nil {
			c.metrics.HookFailed(res.Name, events.BeforeItemInsert)
			return nil, &HookError{Point: events.BeforeItemInsert, Index: i, Err: err}
		}

		out = append(out, staged{index: i, doc: persisted, stamp: st})
	}

	return out, nil
}

// persist inserts the staged documents one by one.
func (c *Coordinator) persist(ctx context.Context, res schema.Resource, docs []staged, report *Report) error {
	for _, s := range docs {
		if err := ctx.Err(); err != nil {
			report.truncate(s.index)
			return err
		}

		if err := c.store.Insert(ctx, res.Name, s.doc); err != nil {
			report.truncate(s.index)
			c.metrics.PersistenceFailed(res.Name)
			c.logger.Error().
				Err(err).
				Str("resource", res.Name).
				Int("index", s.index).
				Msg("insert failed")
			return &storage.PersistenceError{Resource: res.Name, Index: s.index, Err: err}
		}

		report.commit(s.index, s.doc, s.stamp)
		c.metrics.DocumentAccepted(res.Name)

		if err := c.hooks.Fire(ctx, events.Event{
			Point:    events.AfterItemInsert,
			Resource: res.Name,
			Document: s.doc,
		}); err != nil {
			c.warn(report, &HookError{Point: events.AfterItemInsert, Index: s.index, Err: err})
		}
	}

	return nil
}

// warn records a post-commit hook failure. It never undoes persisted state.
func (c *Coordinator) warn(report *Report, err *HookError) {
	report.HookWarnings = append(report.HookWarnings, err)
	c.metrics.HookFailed(report.Resource, err.Point)
	c.logger.Warn().
		Err(err.Err).
		Str("resource", report.Resource).
		Str("point", string(err.Point)).
		Int("index", err.Index).
		Msg("hook failed after commit")
}

func resultLabel(err error) string {
	var hookErr *HookError
	var persistErr *storage.PersistenceError
	switch {
	case errors.As(err, &hookErr):
		return "hook_veto"
	case errors.As(err, &persistErr):
		return "persistence_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
