package bootstrap

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/docgate/config"
	"github.com/artpar/docgate/core/events"
	"github.com/artpar/docgate/core/storage"
	"github.com/rs/zerolog"
)

const peopleYAML = `
resource: people
schema:
  name: { type: string, required: true, unique: true }
`

const contactsYAML = `
resource: contacts
schema:
  ref:    { type: string, required: true }
  person: { type: string, relation: { resource: people, field: name } }
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// newTestApp writes a config using the memory store and one resource file.
func newTestApp(t *testing.T, extra string) (*App, string) {
	t.Helper()
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	dir := t.TempDir()
	resDir := filepath.Join(dir, "resources")
	if err := os.Mkdir(resDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(resDir, "people.yaml"), peopleYAML)

	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
resources:
  dir: ./resources
database:
  driver: memory
documents:
  id_generator: sequential
logging:
  level: error
metrics:
  enabled: true
openapi:
  enabled: true
`+extra)

	app, err := New(Options{ConfigPath: path, Version: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(app.Close)
	return app, resDir
}

func TestNew(t *testing.T) {
	app, _ := newTestApp(t, "")

	if app.Pipeline == nil || app.Store == nil || app.HTTPServer == nil {
		t.Fatal("app not fully wired")
	}
	if app.Metrics == nil {
		t.Error("metrics should be enabled")
	}
	if app.HTTPServer.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %s", app.HTTPServer.Addr)
	}
	if _, ok := app.Pipeline.Resource("people"); !ok {
		t.Error("people resource not loaded")
	}

	report, err := app.Pipeline.Insert(context.Background(), "people", []map[string]any{{"name": "Ada"}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(report.Committed) != 1 {
		t.Errorf("committed = %d, want 1", len(report.Committed))
	}
	if id := report.Outcomes[0].Stamp.ID; id != "1" {
		t.Errorf("id = %v, want sequential 1", id)
	}
}

func TestNew_ServesHTTP(t *testing.T) {
	app, _ := newTestApp(t, "")

	req := httptest.NewRequest(http.MethodPost, "/people", strings.NewReader(`{"name":"Grace"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.HTTPServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	for _, path := range []string{"/health", "/metrics", "/openapi.json"} {
		rec := httptest.NewRecorder()
		app.HTTPServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestNew_InvalidResources(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	dir := t.TempDir()
	resDir := filepath.Join(dir, "resources")
	if err := os.Mkdir(resDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(resDir, "contacts.yaml"), contactsYAML) // relation to missing resource
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "resources:\n  dir: ./resources\ndatabase:\n  driver: memory\nlogging:\n  level: error\n")

	if _, err := New(Options{ConfigPath: path}); err == nil || !strings.Contains(err.Error(), "load resources") {
		t.Fatalf("err = %v, want resource load failure", err)
	}
}

func TestReload(t *testing.T) {
	app, resDir := newTestApp(t, "")

	writeFile(t, filepath.Join(resDir, "contacts.yaml"), contactsYAML)

	next := *app.Config
	next.Hooks = []config.HookConfig{{Point: "after-batch", Action: "log"}}
	if err := app.Reload(&next); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, ok := app.Pipeline.Resource("contacts"); !ok {
		t.Error("contacts not loaded after reload")
	}
	if app.Hooks.Len() != 1 {
		t.Errorf("hooks = %d, want 1", app.Hooks.Len())
	}

	// Broken definitions leave the previous domain in place.
	writeFile(t, filepath.Join(resDir, "broken.yaml"), "resource: broken\nschema:\n  a: { type: blob }\n")
	if err := app.Reload(&next); err == nil {
		t.Fatal("Reload should fail on invalid resources")
	}
	if _, ok := app.Pipeline.Resource("contacts"); !ok {
		t.Error("previous domain should survive a failed reload")
	}
}

func TestOpenStore(t *testing.T) {
	store, err := OpenStore(config.DatabaseConfig{Driver: "memory"}, "id")
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*storage.MemoryStore); !ok {
		t.Errorf("memory driver returned %T", store)
	}

	path := filepath.Join(t.TempDir(), "docs.db")
	store, err = OpenStore(config.DatabaseConfig{Driver: "sqlite", DSN: path, Synchronous: "FULL"}, "id")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	store.Close()

	if _, err := OpenStore(config.DatabaseConfig{Driver: "postgres"}, "id"); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestHookSet(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	registry := events.NewRegistry(zerolog.Nop())
	hooks := NewHookSet(logger, "id")
	if err := hooks.Install(registry); err != nil {
		t.Fatalf("Install: %v", err)
	}
	hooks.Configure([]config.HookConfig{
		{Point: "after-item-insert", Resource: "people", Action: "log"},
	})

	ctx := context.Background()
	fire := func(point events.Point, resource string) {
		t.Helper()
		err := registry.Fire(ctx, events.Event{
			Point:    point,
			Resource: resource,
			Document: map[string]any{"id": "p1"},
		})
		if err != nil {
			t.Fatalf("Fire: %v", err)
		}
	}

	fire(events.AfterItemInsert, "contacts")
	fire(events.BeforeItemInsert, "people")
	if buf.Len() != 0 {
		t.Fatalf("unexpected audit output: %s", buf.String())
	}

	fire(events.AfterItemInsert, "people")
	out := buf.String()
	if !strings.Contains(out, `"id":"p1"`) || !strings.Contains(out, `"resource":"people"`) {
		t.Errorf("audit output = %s", out)
	}

	buf.Reset()
	hooks.Configure(nil)
	fire(events.AfterItemInsert, "people")
	if buf.Len() != 0 {
		t.Error("hooks should be cleared by Configure(nil)")
	}
}

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	SetupLogger(config.LoggingConfig{Level: "warn", Format: "console"})
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", zerolog.GlobalLevel())
	}

	SetupLogger(config.LoggingConfig{Level: "nonsense"})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("level = %v, want info fallback", zerolog.GlobalLevel())
	}
}

func TestHookSet_Reject(t *testing.T) {
	registry := events.NewRegistry(zerolog.Nop())
	hooks := NewHookSet(zerolog.Nop(), "id")
	if err := hooks.Install(registry); err != nil {
		t.Fatal(err)
	}
	hooks.Configure([]config.HookConfig{
		{Point: "before-item-insert", Action: "reject", When: `lower(doc.name) == "root"`, Message: "reserved name"},
		{Point: "before-batch", Action: "reject", When: `len(docs) > 2`},
	})

	ctx := context.Background()
	item := func(name string) error {
		return registry.Fire(ctx, events.Event{
			Point:    events.BeforeItemInsert,
			Resource: "people",
			Document: map[string]any{"name": name},
		})
	}

	if err := item("Ada"); err != nil {
		t.Errorf("Ada rejected: %v", err)
	}
	if err := item("ROOT"); err == nil || !strings.Contains(err.Error(), "reserved name") {
		t.Errorf("err = %v, want reserved name", err)
	}

	batch := registry.Fire(ctx, events.Event{
		Point:      events.BeforeBatch,
		Resource:   "people",
		Candidates: []map[string]any{{}, {}, {}},
	})
	if batch == nil || !strings.Contains(batch.Error(), "rejected by rule") {
		t.Errorf("batch err = %v", batch)
	}
}

func TestNew_RejectHook(t *testing.T) {
	app, _ := newTestApp(t, `
hooks:
  - point: before-item-insert
    resource: people
    action: reject
    when: doc.name == "Mallory"
    message: blocked
`)

	req := httptest.NewRequest(http.MethodPost, "/people", strings.NewReader(`[{"name":"Alice"},{"name":"Mallory"}]`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.HTTPServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "blocked") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if n, err := app.Store.Count(context.Background(), "people"); err != nil || n != 0 {
		t.Errorf("Count = %d, %v; want nothing stored after a reject", n, err)
	}
}

func TestNew_ACMETLS(t *testing.T) {
	app, _ := newTestApp(t, `
server:
  tls:
    mode: acme
    domains: [docs.example.com]
    email: ops@example.com
    cache_dir: `+t.TempDir()+`
    http_addr: ":8081"
`)

	if app.TLS == nil || app.TLS.Name() != "acme" {
		t.Fatalf("TLS = %v", app.TLS)
	}
	if app.HTTPServer.TLSConfig == nil {
		t.Error("server has no TLS config")
	}
	if app.plainServer == nil || app.plainServer.Addr != ":8081" {
		t.Errorf("plain listener = %v", app.plainServer)
	}
}
