package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/docgate/core/canonical"
	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/resolve"
	"github.com/artpar/docgate/core/schema"
)

// MemoryStore is an in-process Store. It enforces identifier and declared
// unique fields the same way the SQLite indexes do.
type MemoryStore struct {
	mu      sync.RWMutex
	idField string
	unique  map[string][]string
	docs    map[string][]map[string]any
}

// NewMemoryStore creates an empty store keyed by idField.
func NewMemoryStore(idField string) *MemoryStore {
	if idField == "" {
		idField = convention.DefaultNames().ID
	}
	return &MemoryStore{
		idField: idField,
		unique:  make(map[string][]string),
		docs:    make(map[string][]map[string]any),
	}
}

// EnsureResource registers a resource and its unique fields.
func (m *MemoryStore) EnsureResource(_ context.Context, res schema.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unique[res.Name] = uniqueFields(res, m.idField)
	if _, ok := m.docs[res.Name]; !ok {
		m.docs[res.Name] = nil
	}
	return nil
}

// FindOne returns a copy of the first matching document, or nil.
func (m *MemoryStore) FindOne(ctx context.Context, resource string, filter Filter) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	docs, ok := m.docs[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}

	for _, doc := range docs {
		if matches(doc, filter) {
			return resolve.CloneDocument(doc), nil
		}
	}
	return nil, nil
}

func matches(doc map[string]any, filter Filter) bool {
	for field, want := range filter {
		if !canonical.Equal(doc[field], want) {
			return false
		}
	}
	return true
}

// Insert stores a copy of doc.
func (m *MemoryStore) Insert(ctx context.Context, resource string, doc map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.docs[resource]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}

	id, ok := doc[m.idField]
	if !ok || id == nil {
		return fmt.Errorf("insert %s: document has no %s", resource, m.idField)
	}

	for _, existing := range docs {
		if canonical.Equal(existing[m.idField], id) {
			return fmt.Errorf("insert %s: %w: %s %v", resource, ErrDuplicate, m.idField, id)
		}
		for _, field := range m.unique[resource] {
			value := doc[field]
			if value != nil && canonical.Equal(existing[field], value) {
				return fmt.Errorf("insert %s: %w: %s %v", resource, ErrDuplicate, field, value)
			}
		}
	}

	m.docs[resource] = append(docs, resolve.CloneDocument(doc))
	return nil
}

// Count returns the number of stored documents of a resource.
func (m *MemoryStore) Count(_ context.Context, resource string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs, ok := m.docs[resource]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	return len(docs), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
