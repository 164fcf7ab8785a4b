// Package convention holds the naming conventions and toggles the surrounding
// system configures for the write pipeline. Every component that needs one of
// these receives a Settings value explicitly; nothing reads ambient state.
package convention

// Names are the reserved field names carried by documents and responses.
// Renaming changes the key, never the meaning.
type Names struct {
	// ID carries the document identifier.
	ID string `yaml:"id"`

	// ETag carries the concurrency token.
	ETag string `yaml:"etag"`

	// Updated carries the modification timestamp.
	Updated string `yaml:"updated"`

	// Created carries the creation timestamp.
	Created string `yaml:"created"`

	// Status carries the per-outcome marker (OK / ERR).
	Status string `yaml:"status"`

	// Issues carries the validation issues of a failed outcome.
	Issues string `yaml:"issues"`

	// Items wraps the per-document outcomes of an array submission.
	Items string `yaml:"items"`

	// Error carries a request-level failure.
	Error string `yaml:"error"`
}

// Settings threads field names and behaviour toggles through the pipeline.
type Settings struct {
	Names Names `yaml:"names"`

	// BandwidthSaver omits fields the client already knows from its own submission.
	BandwidthSaver bool `yaml:"bandwidth_saver"`

	// IfMatch controls whether concurrency tokens are emitted at all.
	IfMatch bool `yaml:"if_match"`

	// AllowUnknown lets undeclared fields pass validation. Resources may override.
	AllowUnknown bool `yaml:"allow_unknown"`
}

// Status markers.
const (
	StatusOK  = "OK"
	StatusErr = "ERR"
)

// DefaultNames returns the stock field names.
func DefaultNames() Names {
	return Names{
		ID:      "id",
		ETag:    "_etag",
		Updated: "_updated",
		Created: "_created",
		Status:  "_status",
		Issues:  "_issues",
		Items:   "_items",
		Error:   "_error",
	}
}

// Default returns the stock settings: bandwidth saver and etags on, unknown fields rejected.
func Default() Settings {
	return Settings{
		Names:          DefaultNames(),
		BandwidthSaver: true,
		IfMatch:        true,
	}
}

// WithDefaults fills empty names with the stock ones.
func (s Settings) WithDefaults() Settings {
	d := DefaultNames()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.Names.ID, d.ID)
	fill(&s.Names.ETag, d.ETag)
	fill(&s.Names.Updated, d.Updated)
	fill(&s.Names.Created, d.Created)
	fill(&s.Names.Status, d.Status)
	fill(&s.Names.Issues, d.Issues)
	fill(&s.Names.Items, d.Items)
	fill(&s.Names.Error, d.Error)
	return s
}

// SystemFields returns the names the pipeline assigns on insert.
func (s Settings) SystemFields() []string {
	return []string{s.Names.ID, s.Names.ETag, s.Names.Created, s.Names.Updated}
}

// IsSystemField reports whether name is assigned by the pipeline rather than the client.
// The id field is excluded: a schema may declare it to accept client ids.
func (s Settings) IsSystemField(name string) bool {
	switch name {
	case s.Names.ETag, s.Names.Created, s.Names.Updated:
		return true
	}
	return false
}

// Table returns the storage table name for a resource.
func Table(resource string) string {
	return "res_" + resource
}
