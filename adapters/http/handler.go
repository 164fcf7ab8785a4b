// Package http exposes the write pipeline over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/artpar/docgate/adapters/auth"
	"github.com/artpar/docgate/adapters/metrics"
	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/openapi"
	"github.com/artpar/docgate/core/pipeline"
	"github.com/artpar/docgate/core/response"
	"github.com/artpar/docgate/core/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// Pipeline is the write pipeline the handlers drive.
type Pipeline interface {
	Insert(ctx context.Context, resource string, candidates []map[string]any) (*pipeline.Report, error)
	Resource(name string) (schema.Resource, bool)
	Domain() schema.Domain
	Settings() convention.Settings
}

// errMalformed marks payloads that are neither a document nor a list of documents.
var errMalformed = errors.New("malformed payload")

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
	Service string `json:"service" example:"docgate"`
}

// WriteHandler serves POST /{resource}.
type WriteHandler struct {
	pipeline     Pipeline
	logger       zerolog.Logger
	metrics      *metrics.Collector
	maxBodyBytes int64
	timeout      time.Duration
	auth         auth.Authenticator
}

// NewWriteHandler creates a write handler. A nil collector disables metrics;
// a zero timeout leaves batches bounded only by the request context.
func NewWriteHandler(p Pipeline, logger zerolog.Logger, m *metrics.Collector, maxBodyBytes int64, timeout time.Duration) *WriteHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 10 << 20 // 10MB
	}
	return &WriteHandler{
		pipeline:     p,
		logger:       logger,
		metrics:      m,
		maxBodyBytes: maxBodyBytes,
		timeout:      timeout,
	}
}

// ServeHTTP inserts one document or an array of documents.
func (h *WriteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "resource")
	renderer := response.NewRenderer(h.pipeline.Settings())

	status := h.serve(w, r, name, renderer)

	if h.metrics != nil {
		label := name
		if _, ok := h.pipeline.Resource(name); !ok {
			label = "unknown"
		}
		h.metrics.ObserveRequest(r.Method, label, status, time.Since(start))
	}
}

// WithAuth requires callers to authenticate with a.
func (h *WriteHandler) WithAuth(a auth.Authenticator) *WriteHandler {
	h.auth = a
	return h
}

func (h *WriteHandler) serve(w http.ResponseWriter, r *http.Request, name string, renderer *response.Renderer) int {
	if h.auth != nil {
		principal, err := h.auth.Authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", h.auth.Scheme()+` realm="docgate"`)
			return writeJSON(w, http.StatusUnauthorized, renderer.Error(http.StatusUnauthorized, err))
		}
		if !principal.Allows(name) {
			h.logger.Warn().Str("subject", principal.Subject).Str("resource", name).Msg("write outside granted resources")
			return writeJSON(w, http.StatusForbidden, renderer.Error(http.StatusForbidden, fmt.Errorf("no write access to %q", name)))
		}
	}

	res, ok := h.pipeline.Resource(name)
	if !ok {
		return writeJSON(w, response.NotFound, renderer.Error(response.NotFound, fmt.Errorf("unknown resource %q", name)))
	}
	if res.ReadOnly {
		return writeJSON(w, response.MethodNotAllowed, renderer.Error(response.MethodNotAllowed, fmt.Errorf("resource %q is read-only", name)))
	}

	docs, isArray, err := decodePayload(w, r, h.maxBodyBytes)
	if err != nil {
		code := response.BadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		return writeJSON(w, code, renderer.Error(code, err))
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	report, err := h.pipeline.Insert(ctx, name, docs)
	code := response.StatusFor(report, err)
	if err != nil {
		event := h.logger.Warn()
		if code >= 500 {
			event = h.logger.Error()
		}
		if report != nil && len(report.Committed) > 0 {
			event = event.Strs("committed_ids", committedIDs(report, h.pipeline.Settings().Names.ID))
		}
		event.Err(err).
			Str("resource", name).
			Int("status", code).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("insert failed")
		return writeJSON(w, code, renderer.Error(code, err))
	}

	for _, warning := range report.HookWarnings {
		h.logger.Warn().Err(warning).Str("resource", name).Msg("hook failed after insert")
	}

	return writeJSON(w, code, renderer.Report(res, report, isArray))
}

// committedIDs lists the ids persisted before a batch stopped.
func committedIDs(report *pipeline.Report, idField string) []string {
	ids := make([]string, 0, len(report.Committed))
	for _, doc := range report.Committed {
		ids = append(ids, fmt.Sprint(doc[idField]))
	}
	return ids
}

// decodePayload reads a JSON document, a JSON array of documents or a form.
func decodePayload(w http.ResponseWriter, r *http.Request, limit int64) ([]map[string]any, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(r.Header.Get("Content-Type"), ";")[0]))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		doc, err := decodeForm(r, limit)
		if err != nil {
			return nil, false, err
		}
		return []map[string]any{doc}, false, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read request body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, false, fmt.Errorf("%w: empty body", errMalformed)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false, fmt.Errorf("%w: %v", errMalformed, err)
	}

	switch v := payload.(type) {
	case map[string]any:
		return []map[string]any{v}, false, nil
	case []any:
		docs := make([]map[string]any, len(v))
		for i, item := range v {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, true, fmt.Errorf("%w: item %d is not an object", errMalformed, i)
			}
			docs[i] = doc
		}
		return docs, true, nil
	default:
		return nil, false, fmt.Errorf("%w: expected an object or an array of objects", errMalformed)
	}
}

// decodeForm turns form fields into a flat document; the first value of a
// repeated key wins.
func decodeForm(r *http.Request, limit int64) (map[string]any, error) {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(limit)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}

	doc := make(map[string]any, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			doc[key] = values[0]
		}
	}
	return doc, nil
}

// writeJSON writes a JSON body and returns the status for bookkeeping.
func writeJSON(w http.ResponseWriter, status int, body any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
	return status
}

// Liveness returns a simple liveness check.
func Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// versionHandler returns the service version.
func versionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{
			Version: version,
			Service: "docgate",
		})
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics       *metrics.Collector
	MetricsPath   string // default /metrics
	EnableOpenAPI bool
	MaxBodyBytes  int64
	BatchTimeout  time.Duration // deadline for one insert, storage included
	Version       string
	Auth          auth.Authenticator // nil leaves the write endpoint open
}

// NewRouter creates the HTTP router for a pipeline.
func NewRouter(p Pipeline, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	if cfg.Metrics != nil {
		r.Use(NewInFlightMiddleware(cfg.Metrics))
	}

	r.Get("/health", Liveness)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	r.Get("/version", versionHandler(version))

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.Metrics.Handler())
	}

	if cfg.EnableOpenAPI {
		name := registerDoc(p)
		r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			doc, err := swag.ReadDoc(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			io.WriteString(w, doc)
		})
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/openapi.json"),
			httpSwagger.InstanceName(name),
		))
	}

	write := NewWriteHandler(p, logger, cfg.Metrics, cfg.MaxBodyBytes, cfg.BatchTimeout).WithAuth(cfg.Auth)
	r.Post("/{resource}", write.ServeHTTP)

	// Item endpoints are not served by this service.
	r.HandleFunc("/{resource}/{id}", func(w http.ResponseWriter, r *http.Request) {
		renderer := response.NewRenderer(p.Settings())
		writeJSON(w, response.MethodNotAllowed, renderer.Error(response.MethodNotAllowed, errors.New("item endpoints are not supported")))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		renderer := response.NewRenderer(p.Settings())
		writeJSON(w, response.MethodNotAllowed, renderer.Error(response.MethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method)))
	})

	return r
}

// swaggerDoc renders the OpenAPI document for the pipeline's current domain.
type swaggerDoc struct {
	pipeline Pipeline
}

// ReadDoc implements swag.Swagger.
func (d swaggerDoc) ReadDoc() string {
	data, err := openapi.NewGenerator(d.pipeline.Domain(), d.pipeline.Settings()).Generate().ToJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

var docInstances atomic.Int64

// registerDoc registers a swag instance for the pipeline and returns its name.
// swag panics on duplicate names, so each router gets its own.
func registerDoc(p Pipeline) string {
	name := fmt.Sprintf("docgate-%d", docInstances.Add(1))
	swag.Register(name, swaggerDoc{pipeline: p})
	return name
}

// NewInFlightMiddleware tracks requests currently being served.
func NewInFlightMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()
			next.ServeHTTP(w, r)
		})
	}
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
