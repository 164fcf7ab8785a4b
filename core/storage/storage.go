// Package storage defines the contract the write pipeline requires from a
// persistence backend, with SQLite and in-memory implementations.
//
// The pipeline needs only two operations: FindOne for uniqueness and
// referential checks, and Insert for commits. Anything else a backend offers
// (queries, updates, pagination) is outside this contract.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/docgate/core/schema"
)

var (
	// ErrDuplicate reports a storage-level uniqueness violation at write time.
	ErrDuplicate = errors.New("duplicate key")

	// ErrUnknownResource reports an operation on a resource the store was not prepared for.
	ErrUnknownResource = errors.New("unknown resource")
)

// Filter is an equality match on top-level document fields.
type Filter map[string]any

// Lookup finds documents. Validation depends on this half of the store only.
type Lookup interface {
	// FindOne returns a document of resource matching every filter entry,
	// or nil when none exists.
	FindOne(ctx context.Context, resource string, filter Filter) (map[string]any, error)
}

// Store is durable document persistence.
type Store interface {
	Lookup

	// EnsureResource prepares storage for a resource (tables, unique indexes).
	EnsureResource(ctx context.Context, res schema.Resource) error

	// Insert commits one stamped document. A failure here is fatal to the request.
	Insert(ctx context.Context, resource string, doc map[string]any) error

	// Count returns the number of documents in a resource.
	Count(ctx context.Context, resource string) (int, error)

	// Close releases the backend.
	Close() error
}

// PersistenceError is a fatal write failure, distinct from validation failure.
type PersistenceError struct {
	Resource string
	Index    int // position of the document in its batch
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s[%d]: %v", e.Resource, e.Index, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// uniqueFields returns the top-level unique fields of a resource, excluding idField.
func uniqueFields(res schema.Resource, idField string) []string {
	var out []string
	for _, name := range res.FieldNames() {
		if res.Schema[name].Unique && name != idField {
			out = append(out, name)
		}
	}
	return out
}
