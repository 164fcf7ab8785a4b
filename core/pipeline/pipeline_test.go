package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/artpar/docgate/adapters/clock"
	"github.com/artpar/docgate/adapters/idgen"
	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/events"
	"github.com/artpar/docgate/core/resolve"
	"github.com/artpar/docgate/core/schema"
	"github.com/artpar/docgate/core/storage"
	"github.com/rs/zerolog"
)

const (
	refA = "1234567890123456789054321"
	refB = "9234567890123456789054329"
)

func testDomain() schema.Domain {
	return schema.Domain{
		"contacts": {
			Name: "contacts",
			Schema: map[string]schema.Field{
				"ref": {
					Type: schema.FieldTypeString, Required: true, Unique: true,
					Constraints: []schema.Constraint{{Type: schema.ConstraintMinLength, Value: 25}},
				},
				"prog":    {Type: schema.FieldTypeInteger},
				"title":   {Type: schema.FieldTypeString, Required: true, Default: "Mr."},
				"name":    {Type: schema.FieldTypeString, Default: ""},
				"count":   {Type: schema.FieldTypeInteger, Default: 0},
				"enabled": {Type: schema.FieldTypeBoolean, Default: false},
				"person":  {Type: schema.FieldTypeString, Relation: &schema.Relation{Resource: "people"}},
			},
		},
		"people": {
			Name:   "people",
			Schema: map[string]schema.Field{"name": {Type: schema.FieldTypeString}},
		},
		"archive": {
			Name:     "archive",
			ReadOnly: true,
			Schema:   map[string]schema.Field{"name": {Type: schema.FieldTypeString}},
		},
		"loops": {
			Name: "loops",
			Schema: map[string]schema.Field{
				"a": {Type: schema.FieldTypeString, Dependencies: []string{"b"}},
				"b": {Type: schema.FieldTypeString, Dependencies: []string{"a"}},
			},
		},
		"accounts": {
			Name: "accounts",
			Schema: map[string]schema.Field{
				"id":   {Type: schema.FieldTypeString},
				"name": {Type: schema.FieldTypeString},
			},
		},
	}
}

type fixture struct {
	coord *Coordinator
	store storage.Store
	hooks *events.Registry
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	ctx := context.Background()

	if store == nil {
		store = storage.NewMemoryStore("id")
	}
	domain := testDomain()
	for _, name := range domain.Names() {
		if err := store.EnsureResource(ctx, domain[name]); err != nil {
			t.Fatalf("EnsureResource(%s): %v", name, err)
		}
	}

	hooks := events.NewRegistry(zerolog.Nop())
	coord, err := New(domain, store, Options{
		Settings: convention.Default(),
		IDs:      idgen.NewSequential("doc"),
		Clock:    clock.NewFake(time.Date(2026, 4, 2, 10, 29, 13, 0, time.UTC)),
		Hooks:    hooks,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &fixture{coord: coord, store: store, hooks: hooks}
}

func (f *fixture) count(t *testing.T, resource string) int {
	t.Helper()
	n, err := f.store.Count(context.Background(), resource)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

func docs(ds ...map[string]any) []map[string]any { return ds }

func TestInsert_SingleValid(t *testing.T) {
	f := newFixture(t, nil)

	report, err := f.coord.Insert(context.Background(), "contacts", docs(map[string]any{"ref": refA}))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if report.Status() != StatusCreated {
		t.Errorf("Status() = %v, want created", report.Status())
	}

	o := report.Outcomes[0]
	if o.State != Committed {
		t.Fatalf("State = %v, issues %v", o.State, o.Issues)
	}
	if o.Stamp.ID != "doc1" || o.Stamp.ETag == "" {
		t.Errorf("Stamp = %+v", o.Stamp)
	}
	if !o.Stamp.Created.Equal(o.Stamp.Updated) {
		t.Errorf("created %v != updated %v", o.Stamp.Created, o.Stamp.Updated)
	}
	if o.Document["id"] != "doc1" || o.Document["ref"] != refA {
		t.Errorf("Document = %v", o.Document)
	}
}

func TestInsert_SingleInvalid(t *testing.T) {
	f := newFixture(t, nil)

	report, err := f.coord.Insert(context.Background(), "contacts", docs(map[string]any{"ref": "123"}))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if report.Status() != StatusInvalid {
		t.Errorf("Status() = %v, want invalid", report.Status())
	}
	o := report.Outcomes[0]
	if o.State != Rejected || len(o.Issues) != 1 || o.Issues[0].Message != "min length is 25" {
		t.Errorf("outcome = %+v", o)
	}
	if o.Document != nil {
		t.Error("rejected outcome carries a document")
	}
	if f.count(t, "contacts") != 0 {
		t.Error("rejected document reached storage")
	}
}

func TestInsert_PartialCommitPreservesOrder(t *testing.T) {
	for name, store := range map[string]func(t *testing.T) storage.Store{
		"memory": func(*testing.T) storage.Store { return storage.NewMemoryStore("id") },
		"sqlite": func(t *testing.T) storage.Store {
			s, err := storage.NewSQLiteStore(":memory:", storage.SQLiteOptions{})
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, store(t))

			report, err := f.coord.Insert(context.Background(), "contacts", docs(
				map[string]any{"ref": refA},
				map[string]any{"prog": float64(7)},
				map[string]any{"ref": refB},
			))
			if err != nil {
				t.Fatalf("Insert failed: %v", err)
			}

			if len(report.Outcomes) != 3 {
				t.Fatalf("got %d outcomes, want 3", len(report.Outcomes))
			}
			wantStates := []State{Committed, Rejected, Committed}
			for i, want := range wantStates {
				if got := report.Outcomes[i].State; got != want {
					t.Errorf("outcome[%d] = %v, want %v", i, got, want)
				}
				if report.Outcomes[i].Index != i {
					t.Errorf("outcome[%d].Index = %d", i, report.Outcomes[i].Index)
				}
			}
			if !report.Outcomes[1].Issues.Has("ref") || report.Outcomes[1].Issues[0].Rule != "required" {
				t.Errorf("outcome[1] issues = %v", report.Outcomes[1].Issues)
			}
			if n := f.count(t, "contacts"); n != 2 {
				t.Errorf("storage holds %d documents, want 2", n)
			}
			if committed, rejected := report.Counts(); committed != 2 || rejected != 1 {
				t.Errorf("Counts() = %d, %d", committed, rejected)
			}
		})
	}
}

func TestInsert_InBatchUnique(t *testing.T) {
	f := newFixture(t, nil)

	report, err := f.coord.Insert(context.Background(), "contacts", docs(
		map[string]any{"ref": refA},
		map[string]any{"ref": refA},
	))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if report.Outcomes[0].State != Committed {
		t.Errorf("first = %v", report.Outcomes[0].State)
	}
	second := report.Outcomes[1]
	if second.State != Rejected || second.Issues[0].Rule != "unique" || second.Issues[0].Path != "ref" {
		t.Errorf("second = %+v", second)
	}
	if f.count(t, "contacts") != 1 {
		t.Error("duplicate reached storage")
	}
}

func TestInsert_DefaultsApplied(t *testing.T) {
	f := newFixture(t, nil)

	report, err := f.coord.Insert(context.Background(), "contacts", docs(map[string]any{"ref": refA}))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	doc := report.Outcomes[0].Document
	want := map[string]any{"title": "Mr.", "name": "", "count": 0, "enabled": false}
	for field, value := range want {
		got, ok := doc[field]
		if !ok {
			t.Errorf("%s: default not applied", field)
			continue
		}
		if got != value {
			t.Errorf("%s = %#v, want %#v", field, got, value)
		}
	}

	stored, _ := f.store.FindOne(context.Background(), "contacts", storage.Filter{"id": "doc1"})
	if stored["title"] != "Mr." {
		t.Errorf("persisted title = %v", stored["title"])
	}
}

func TestInsert_CandidatesUntouched(t *testing.T) {
	f := newFixture(t, nil)
	candidate := map[string]any{"ref": refA}

	if _, err := f.coord.Insert(context.Background(), "contacts", docs(candidate)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(candidate) != 1 {
		t.Errorf("candidate mutated: %v", candidate)
	}
}

func TestInsert_Relation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	people, err := f.coord.Insert(ctx, "people", docs(map[string]any{"name": "alice"}))
	if err != nil {
		t.Fatalf("Insert people failed: %v", err)
	}
	personID := people.Outcomes[0].Stamp.ID

	report, err := f.coord.Insert(ctx, "contacts", docs(
		map[string]any{"ref": refA, "person": personID},
		map[string]any{"ref": refB, "person": "nobody"},
	))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if report.Outcomes[0].State != Committed {
		t.Errorf("existing reference rejected: %v", report.Outcomes[0].Issues)
	}
	issue := report.Outcomes[1].Issues[0]
	if want := "value 'nobody' must exist in resource 'people', field 'id'"; issue.Message != want {
		t.Errorf("issue = %q, want %q", issue.Message, want)
	}
}

func TestInsert_ClientSuppliedID(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	report, err := f.coord.Insert(ctx, "accounts", docs(map[string]any{"id": "acct-7", "name": "x"}))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if got := report.Outcomes[0].Stamp.ID; got != "acct-7" {
		t.Errorf("ID = %v, want acct-7", got)
	}

	report, _ = f.coord.Insert(ctx, "accounts", docs(map[string]any{"id": "acct-7"}))
	if report.Outcomes[0].State != Rejected {
		t.Error("repeated client id accepted")
	}

	// Resources that do not declare the id field reject it.
	report, _ = f.coord.Insert(ctx, "contacts", docs(map[string]any{"id": "mine", "ref": refA}))
	if !report.Outcomes[0].Issues.Has("id") {
		t.Errorf("undeclared id accepted: %+v", report.Outcomes[0])
	}
}

func TestInsert_RequestLevelErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		resource string
		batch    []map[string]any
		check    func(error) bool
	}{
		{"empty batch", "contacts", nil, func(err error) bool { return errors.Is(err, ErrEmptyBatch) }},
		{"unknown resource", "ghosts", docs(map[string]any{}), func(err error) bool { return errors.Is(err, ErrUnknownResource) }},
		{"read-only resource", "archive", docs(map[string]any{}), func(err error) bool { return errors.Is(err, ErrReadOnlyResource) }},
		{"cyclic schema", "loops", docs(map[string]any{"a": "x"}), func(err error) bool {
			var cyc *resolve.CyclicDependencyError
			return errors.As(err, &cyc) && errors.Is(err, resolve.ErrCyclicDependency)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := f.coord.Insert(ctx, tt.resource, tt.batch)
			if !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if report != nil {
				t.Errorf("request-level error returned a report: %+v", report)
			}
		})
	}
}

func TestInsert_BeforeBatchVeto(t *testing.T) {
	f := newFixture(t, nil)
	veto := errors.New("maintenance")
	f.hooks.On(events.BeforeBatch, "contacts", func(_ context.Context, e events.Event) error {
		if len(e.Candidates) != 1 {
			t.Errorf("before-batch saw %d candidates", len(e.Candidates))
		}
		return veto
	})

	report, err := f.coord.Insert(context.Background(), "contacts", docs(map[string]any{"ref": refA}))
	var hookErr *HookError
	if !errors.As(err, &hookErr) || hookErr.Point != events.BeforeBatch || !errors.Is(err, veto) {
		t.Fatalf("err = %v, want before-batch HookError", err)
	}
	if report != nil || f.count(t, "contacts") != 0 {
		t.Error("vetoed batch left traces")
	}
}

func TestInsert_HookLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		switch e.Point {
		case events.BeforeBatch:
			calls = append(calls, "before-batch")
		case events.AfterBatch:
			calls = append(calls, "after-batch:"+strconv.Itoa(len(e.Documents)))
		default:
			calls = append(calls, string(e.Point)+":"+e.Document["id"].(string))
		}
		return nil
	}
	for _, p := range events.Points() {
		f.hooks.On(p, events.AnyResource, record)
	}

	_, err := f.coord.Insert(context.Background(), "contacts", docs(
		map[string]any{"ref": refA},
		map[string]any{"ref": "bad"},
		map[string]any{"ref": refB},
	))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	want := "before-batch," +
		"before-item-insert:doc1,before-item-insert:doc2," +
		"after-item-insert:doc1,after-item-insert:doc2," +
		"after-batch:2"
	if got := strings.Join(calls, ","); got != want {
		t.Errorf("hooks fired:\n%s\nwant\n%s", got, want)
	}
}

func TestInsert_BeforeItemVeto(t *testing.T) {
	f := newFixture(t, nil)
	calls := 0
	f.hooks.On(events.BeforeItemInsert, "contacts", func(context.Context, events.Event) error {
		calls++
		if calls == 2 {
			return errors.New("no second item")
		}
		return nil
	})

	report, err := f.coord.Insert(context.Background(), "contacts", docs(
		map[string]any{"ref": refA},
		map[string]any{"ref": refB},
	))
	var hookErr *HookError
	if !errors.As(err, &hookErr) || hookErr.Point != events.BeforeItemInsert || hookErr.Index != 1 {
		t.Fatalf("err = %v, want before-item-insert HookError at 1", err)
	}
	if report != nil {
		t.Errorf("report = %+v, want none", report.Outcomes)
	}
	if n := f.count(t, "contacts"); n != 0 {
		t.Errorf("storage holds %d documents after a veto, want 0", n)
	}
}

func TestInsert_BeforeItemVetoSkipsRejected(t *testing.T) {
	f := newFixture(t, nil)
	var seen []string
	f.hooks.On(events.BeforeItemInsert, "contacts", func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Document["ref"].(string))
		return nil
	})

	report, err := f.coord.Insert(context.Background(), "contacts", docs(
		map[string]any{"ref": "short"},
		map[string]any{"ref": refA},
	))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(seen) != 1 || seen[0] != refA {
		t.Errorf("before-item-insert saw %v, want only the valid document", seen)
	}
	if report.Outcomes[0].State != Rejected || report.Outcomes[1].State != Committed {
		t.Errorf("outcomes = %v, %v", report.Outcomes[0].State, report.Outcomes[1].State)
	}
}

func TestInsert_AfterHookFailureIsWarning(t *testing.T) {
	f := newFixture(t, nil)
	f.hooks.On(events.AfterItemInsert, events.AnyResource, func(context.Context, events.Event) error {
		return errors.New("audit sink down")
	})
	f.hooks.On(events.AfterBatch, events.AnyResource, func(context.Context, events.Event) error {
		return errors.New("notify failed")
	})

	report, err := f.coord.Insert(context.Background(), "contacts", docs(map[string]any{"ref": refA}))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if report.Outcomes[0].State != Committed || f.count(t, "contacts") != 1 {
		t.Error("after-hook failure rolled back the commit")
	}
	if len(report.HookWarnings) != 2 {
		t.Errorf("HookWarnings = %v", report.HookWarnings)
	}
}

// flakyStore fails inserts after a number of successes.
type flakyStore struct {
	storage.Store
	succeed int
	err     error
}

func (s *flakyStore) Insert(ctx context.Context, resource string, doc map[string]any) error {
	if s.succeed == 0 {
		return s.err
	}
	s.succeed--
	return s.Store.Insert(ctx, resource, doc)
}

func TestInsert_PersistenceFailure(t *testing.T) {
	base := storage.NewMemoryStore("id")
	writeConcern := errors.New("write concern not satisfied")
	f := newFixture(t, &flakyStore{Store: base, succeed: 1, err: writeConcern})

	report, err := f.coord.Insert(context.Background(), "contacts", docs(
		map[string]any{"ref": refA},
		map[string]any{"prog": float64(1)},
		map[string]any{"ref": refB},
		map[string]any{"ref": "9999999999999999999999999"},
	))

	var persistErr *storage.PersistenceError
	if !errors.As(err, &persistErr) || !errors.Is(err, writeConcern) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if persistErr.Index != 2 {
		t.Errorf("failed at %d, want 2", persistErr.Index)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("report covers %d outcomes, want 2", len(report.Outcomes))
	}
	if report.Outcomes[0].State != Committed || report.Outcomes[1].State != Rejected {
		t.Errorf("outcomes = %v, %v", report.Outcomes[0].State, report.Outcomes[1].State)
	}
	if n, _ := base.Count(context.Background(), "contacts"); n != 1 {
		t.Errorf("storage holds %d, want 1", n)
	}
}

func TestInsert_StorageRejectsRacingDuplicate(t *testing.T) {
	base := storage.NewMemoryStore("id")
	f := newFixture(t, &racingStore{Store: base})

	_, err := f.coord.Insert(context.Background(), "contacts", docs(map[string]any{"ref": refA}))
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate surfaced as fatal", err)
	}
}

// racingStore commits a conflicting document just before each insert, as a
// concurrent request would.
type racingStore struct {
	storage.Store
}

func (s *racingStore) Insert(ctx context.Context, resource string, doc map[string]any) error {
	rival := map[string]any{"id": "rival", "ref": doc["ref"]}
	if err := s.Store.Insert(ctx, resource, rival); err != nil {
		return err
	}
	return s.Store.Insert(ctx, resource, doc)
}

func TestInsert_Cancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	f.hooks.On(events.AfterItemInsert, "contacts", func(context.Context, events.Event) error {
		cancel()
		return nil
	})

	report, err := f.coord.Insert(ctx, "contacts", docs(
		map[string]any{"ref": refA},
		map[string]any{"ref": refB},
	))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].State != Committed {
		t.Errorf("report = %+v", report.Outcomes)
	}
	if f.count(t, "contacts") != 1 {
		t.Error("committed document should remain after cancellation")
	}
}

func TestInsert_UpdateDomain(t *testing.T) {
	f := newFixture(t, nil)
	domain := testDomain()
	delete(domain, "people")
	f.coord.UpdateDomain(domain)

	if _, err := f.coord.Insert(context.Background(), "people", docs(map[string]any{})); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("err = %v, want ErrUnknownResource after reload", err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(testDomain(), nil, Options{}); err == nil {
		t.Error("expected error without store")
	}
	if _, err := New(testDomain(), storage.NewMemoryStore(""), Options{}); err == nil {
		t.Error("expected error without id generator and clock")
	}
}
