package schema

import (
	"reflect"
	"testing"
)

func TestField_Kind(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		want  Kind
	}{
		{"string", Field{Type: FieldTypeString}, KindScalar},
		{"integer", Field{Type: FieldTypeInteger}, KindScalar},
		{"list", Field{Type: FieldTypeList}, KindList},
		{"tuple", Field{Type: FieldTypeList, Tuple: []Field{{Type: FieldTypeUUID}}}, KindList},
		{"nested dict", Field{Type: FieldTypeDict, Schema: map[string]Field{"a": {Type: FieldTypeString}}}, KindDocument},
		{"keyed dict", Field{Type: FieldTypeDict, Keys: []KeyRule{{Schema: &Field{Type: FieldTypeInteger}}}}, KindKeyed},
		{"reference", Field{Type: FieldTypeString, Relation: &Relation{Resource: "people"}}, KindReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.field.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestField_HasDefault(t *testing.T) {
	for _, def := range []any{"", 0, false, "Mr."} {
		if !(Field{Default: def}).HasDefault() {
			t.Errorf("HasDefault() false for %#v", def)
		}
	}
	if (Field{}).HasDefault() {
		t.Error("HasDefault() true without a default")
	}
}

func TestField_DependsOn(t *testing.T) {
	f := Field{Dependencies: []string{"a", "b"}, Computed: "b"}
	if got := f.DependsOn(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("DependsOn() = %v", got)
	}

	f = Field{Computed: "c"}
	if got := f.DependsOn(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("DependsOn() = %v", got)
	}
}

func TestFieldType_Known(t *testing.T) {
	if !FieldTypeDatetime.Known() {
		t.Error("datetime should be known")
	}
	if FieldType("enum").Known() {
		t.Error("enum should not be known")
	}
}

func TestDomain(t *testing.T) {
	d := Domain{
		"people":   {Name: "people"},
		"invoices": {Name: "invoices"},
	}
	if _, ok := d.Get("people"); !ok {
		t.Error("Get(people) not found")
	}
	if _, ok := d.Get("ghosts"); ok {
		t.Error("Get(ghosts) found")
	}
	if got := d.Names(); !reflect.DeepEqual(got, []string{"invoices", "people"}) {
		t.Errorf("Names() = %v", got)
	}
}
