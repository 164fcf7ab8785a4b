// Package response renders pipeline reports into the payloads and status
// codes returned to clients.
package response

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/pipeline"
	"github.com/artpar/docgate/core/resolve"
	"github.com/artpar/docgate/core/schema"
	"github.com/artpar/docgate/core/storage"
)

// DateFormat renders timestamps in responses.
const DateFormat = http.TimeFormat

// Status codes surfaced to callers.
const (
	Created          = http.StatusCreated
	Invalid          = http.StatusUnprocessableEntity
	BadRequest       = http.StatusBadRequest
	NotFound         = http.StatusNotFound
	MethodNotAllowed = http.StatusMethodNotAllowed
	ServerError      = http.StatusInternalServerError
)

// StatusFor maps an insert result onto a status code.
func StatusFor(report *pipeline.Report, err error) int {
	if err == nil {
		if report != nil && report.Status() == pipeline.StatusCreated {
			return Created
		}
		return Invalid
	}

	var hookErr *pipeline.HookError
	var persistErr *storage.PersistenceError
	switch {
	case errors.Is(err, pipeline.ErrEmptyBatch):
		return BadRequest
	case errors.Is(err, pipeline.ErrUnknownResource):
		return NotFound
	case errors.Is(err, pipeline.ErrReadOnlyResource):
		return MethodNotAllowed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &persistErr):
		return ServerError
	case errors.As(err, &hookErr):
		return BadRequest
	default:
		return ServerError
	}
}

// Renderer builds response payloads with the configured names and toggles.
type Renderer struct {
	settings convention.Settings
}

// NewRenderer creates a renderer.
func NewRenderer(settings convention.Settings) *Renderer {
	return &Renderer{settings: settings.WithDefaults()}
}

// Report renders a completed batch. A single-document submission yields its
// outcome directly; an array submission yields a wrapped list.
func (r *Renderer) Report(res schema.Resource, report *pipeline.Report, isArray bool) map[string]any {
	if !isArray && len(report.Outcomes) == 1 {
		return r.Outcome(res, report.Outcomes[0])
	}

	status := convention.StatusOK
	items := make([]any, len(report.Outcomes))
	for i, o := range report.Outcomes {
		items[i] = r.Outcome(res, o)
		if o.State != pipeline.Committed {
			status = convention.StatusErr
		}
	}

	return map[string]any{
		r.settings.Names.Status: status,
		r.settings.Names.Items:  items,
	}
}

// Outcome renders one per-document outcome.
func (r *Renderer) Outcome(res schema.Resource, o pipeline.Outcome) map[string]any {
	names := r.settings.Names

	if o.State != pipeline.Committed {
		return map[string]any{
			names.Status: convention.StatusErr,
			names.Issues: o.Issues.Tree(),
		}
	}

	out := make(map[string]any)
	if r.settings.BandwidthSaver {
		// Echo only what the client cannot know: values the server filled in
		// and the fields the resource always returns.
		for k, v := range o.Document {
			if _, sent := o.Submitted[k]; !sent {
				out[k] = resolve.Clone(v)
			}
		}
		for _, k := range res.ExtraResponseFields {
			if v, ok := o.Document[k]; ok {
				out[k] = resolve.Clone(v)
			}
		}
	} else {
		for k, v := range o.Document {
			out[k] = resolve.Clone(v)
		}
	}

	out[names.ID] = o.Stamp.ID
	out[names.Created] = formatTime(o.Stamp.Created)
	out[names.Updated] = formatTime(o.Stamp.Updated)
	if r.settings.IfMatch {
		out[names.ETag] = o.Stamp.ETag
	} else {
		delete(out, names.ETag)
	}
	out[names.Status] = convention.StatusOK

	return out
}

// Error renders a request-level failure.
func (r *Renderer) Error(code int, err error) map[string]any {
	return map[string]any{
		r.settings.Names.Status: convention.StatusErr,
		r.settings.Names.Error: map[string]any{
			"code":    code,
			"message": err.Error(),
		},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(DateFormat)
}
