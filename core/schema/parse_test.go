package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	yaml := `
resource: contacts

allow_unknown: true
extra_response_fields: [ref]

schema:
  ref:   { type: string, required: true, unique: true, constraints: [{ type: min_length, value: 25 }] }
  title: { type: string, default: Mr. }
  prog:  { type: integer }
  location:
    type: dict
    schema:
      city: { type: string }
  scores:
    type: dict
    keys:
      - pattern: "^k"
        schema: { type: integer }
`

	res, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if res.Name != "contacts" {
		t.Errorf("Name = %q, want %q", res.Name, "contacts")
	}
	if len(res.Schema) != 5 {
		t.Errorf("Schema has %d fields, want 5", len(res.Schema))
	}
	if !res.Schema["ref"].Unique || !res.Schema["ref"].Required {
		t.Error("ref should be required and unique")
	}
	if res.Schema["title"].Default != "Mr." {
		t.Errorf("title default = %v, want Mr.", res.Schema["title"].Default)
	}
	if !res.AllowsUnknown(false) {
		t.Error("allow_unknown should override the global default")
	}
	if got := res.Schema["scores"].Kind(); got != KindKeyed {
		t.Errorf("scores kind = %v, want keyed", got)
	}
	if got := res.Schema["location"].Kind(); got != KindDocument {
		t.Errorf("location kind = %v, want document", got)
	}
}

func TestParse_FalsyDefaults(t *testing.T) {
	yaml := `
resource: flags
schema:
  name:    { type: string, default: "" }
  count:   { type: integer, default: 0 }
  enabled: { type: boolean, default: false }
`
	res, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	for _, name := range []string{"name", "count", "enabled"} {
		if !res.Schema[name].HasDefault() {
			t.Errorf("%s: falsy default not recognised", name)
		}
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		res     Resource
		wantErr string
	}{
		{
			name:    "missing name",
			res:     Resource{Schema: map[string]Field{"a": {Type: FieldTypeString}}},
			wantErr: "resource name is required",
		},
		{
			name:    "empty schema",
			res:     Resource{Name: "x"},
			wantErr: "at least one field",
		},
		{
			name: "unknown type",
			res: Resource{Name: "x", Schema: map[string]Field{
				"a": {Type: "blob"},
			}},
			wantErr: `unknown type "blob"`,
		},
		{
			name: "dangling dependency",
			res: Resource{Name: "x", Schema: map[string]Field{
				"a": {Type: FieldTypeString, Dependencies: []string{"missing"}},
			}},
			wantErr: `dependency "missing" not in schema`,
		},
		{
			name: "dangling computed source",
			res: Resource{Name: "x", Schema: map[string]Field{
				"a": {Type: FieldTypeString, Computed: "nope"},
			}},
			wantErr: `computed source "nope"`,
		},
		{
			name: "nested dangling dependency",
			res: Resource{Name: "x", Schema: map[string]Field{
				"loc": {Type: FieldTypeDict, Schema: map[string]Field{
					"city": {Type: FieldTypeString, Dependencies: []string{"zip"}},
				}},
			}},
			wantErr: `field "loc.city": dependency "zip"`,
		},
		{
			name: "bad key pattern",
			res: Resource{Name: "x", Schema: map[string]Field{
				"m": {Type: FieldTypeDict, Keys: []KeyRule{{Pattern: "(", Schema: &Field{Type: FieldTypeString}}}},
			}},
			wantErr: "invalid pattern",
		},
		{
			name: "relation without resource",
			res: Resource{Name: "x", Schema: map[string]Field{
				"p": {Type: FieldTypeString, Relation: &Relation{}},
			}},
			wantErr: "relation requires a resource",
		},
		{
			name: "valid",
			res: Resource{Name: "x", Schema: map[string]Field{
				"a": {Type: FieldTypeString, Dependencies: []string{"b"}},
				"b": {Type: FieldTypeString, Default: "v"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.res)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("people.yaml", "resource: people\nschema:\n  name: { type: string }\n")
	write("invoices.yml", "resource: invoices\nschema:\n  person: { type: string, relation: { resource: people } }\n")
	write("README.md", "ignored")

	domain, err := ParseDir(dir)
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}
	if got := strings.Join(domain.Names(), ","); got != "invoices,people" {
		t.Errorf("Names() = %q", got)
	}

	write("orders.yaml", "resource: orders\nschema:\n  buyer: { type: string, relation: { resource: ghosts } }\n")
	if _, err := ParseDir(dir); err == nil || !strings.Contains(err.Error(), `unknown resource "ghosts"`) {
		t.Fatalf("expected unknown relation target error, got %v", err)
	}
}

func TestParseDir_Duplicate(t *testing.T) {
	dir := t.TempDir()
	body := []byte("resource: people\nschema:\n  name: { type: string }\n")
	os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644)
	os.WriteFile(filepath.Join(dir, "b.yaml"), body, 0o644)

	if _, err := ParseDir(dir); err == nil || !strings.Contains(err.Error(), "defined twice") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}
