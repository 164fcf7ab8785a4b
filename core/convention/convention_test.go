package convention

import "testing"

func TestDefault(t *testing.T) {
	s := Default()
	if s.Names.ID != "id" || s.Names.ETag != "_etag" || s.Names.Items != "_items" {
		t.Errorf("unexpected default names: %+v", s.Names)
	}
	if !s.BandwidthSaver {
		t.Error("bandwidth saver should default to on")
	}
	if !s.IfMatch {
		t.Error("if_match should default to on")
	}
	if s.AllowUnknown {
		t.Error("allow_unknown should default to off")
	}
}

func TestWithDefaults(t *testing.T) {
	s := Settings{Names: Names{ETag: "_myetag", Issues: "errors"}}.WithDefaults()

	if s.Names.ETag != "_myetag" {
		t.Errorf("ETag = %q, override lost", s.Names.ETag)
	}
	if s.Names.Issues != "errors" {
		t.Errorf("Issues = %q, override lost", s.Names.Issues)
	}
	if s.Names.ID != "id" || s.Names.Status != "_status" {
		t.Errorf("missing names not filled: %+v", s.Names)
	}
}

func TestIsSystemField(t *testing.T) {
	s := Default()
	for _, name := range []string{"_etag", "_created", "_updated"} {
		if !s.IsSystemField(name) {
			t.Errorf("%s should be a system field", name)
		}
	}
	if s.IsSystemField("id") {
		t.Error("id may be client supplied")
	}
	if s.IsSystemField("ref") {
		t.Error("ref is not a system field")
	}
}

func TestTable(t *testing.T) {
	if got := Table("contacts"); got != "res_contacts" {
		t.Errorf("Table() = %q", got)
	}
}
