// Package stamp assigns identity and concurrency fields to documents about
// to be persisted. It has no side effects; the caller persists the result.
package stamp

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/artpar/docgate/core/canonical"
	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/resolve"
	"github.com/artpar/docgate/ports"
	"golang.org/x/crypto/blake2b"
)

// ETagDomain prefixes every fingerprint. The version suffix allows a future
// change of algorithm without collisions against old tokens.
const ETagDomain = "docgate/etag/v1"

// Stamp holds the system-assigned fields of one persisted document.
type Stamp struct {
	ID      any
	ETag    string
	Created time.Time
	Updated time.Time
}

// Stamper assigns identifiers, timestamps and concurrency tokens.
type Stamper struct {
	ids   ports.IDGenerator
	clock ports.Clock
	names convention.Names
}

// New creates a stamper writing under the given field names.
func New(ids ports.IDGenerator, clock ports.Clock, names convention.Names) *Stamper {
	return &Stamper{ids: ids, clock: clock, names: names}
}

// Stamp computes the stamp for doc. A client-supplied identifier is kept
// only when clientID is set, meaning the resource schema declares the id
// field and the value passed validation.
func (s *Stamper) Stamp(doc map[string]any, clientID bool) (Stamp, error) {
	var id any
	if supplied, ok := doc[s.names.ID]; clientID && ok && supplied != nil {
		id = supplied
	} else {
		id = s.ids.New()
	}

	// Second precision, matching HTTP date headers.
	now := s.clock.Now().UTC().Truncate(time.Second)

	etag, err := s.ETag(doc, id)
	if err != nil {
		return Stamp{}, err
	}

	return Stamp{ID: id, ETag: etag, Created: now, Updated: now}, nil
}

// ETag fingerprints the document content together with its identifier.
// System fields other than the identifier are ignored, so the token depends
// on what the client stored and nothing else.
func (s *Stamper) ETag(doc map[string]any, id any) (string, error) {
	content := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		switch k {
		case s.names.ETag, s.names.Created, s.names.Updated:
			continue
		}
		content[k] = v
	}
	content[s.names.ID] = id

	data, err := canonical.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("etag: %w", err)
	}
	return hashWithDomain(ETagDomain, data), nil
}

// hashWithDomain computes BLAKE2b-256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h, _ := blake2b.New256(nil) // only fails for oversized keys
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Apply returns a copy of doc carrying the stamp under the configured names.
func (s *Stamper) Apply(doc map[string]any, st Stamp) map[string]any {
	out := resolve.CloneDocument(doc)
	out[s.names.ID] = st.ID
	out[s.names.ETag] = st.ETag
	out[s.names.Created] = st.Created
	out[s.names.Updated] = st.Updated
	return out
}
