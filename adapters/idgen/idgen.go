// Package idgen provides document identifier generators.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/artpar/docgate/ports"
	"github.com/google/uuid"
)

// Generator kinds accepted by New.
const (
	KindUUID4      = "uuid4"
	KindUUID7      = "uuid7"
	KindSequential = "sequential"
)

// New returns the generator for kind. An empty kind means uuid4.
func New(kind string) (ports.IDGenerator, error) {
	switch kind {
	case "", KindUUID4:
		return UUID{}, nil
	case KindUUID7:
		return UUIDv7{}, nil
	case KindSequential:
		return NewSequential(""), nil
	}
	return nil, fmt.Errorf("unknown id generator %q", kind)
}

// UUID generates random (version 4) UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

// UUIDv7 generates time-ordered (version 7) UUIDs, which keep inserts
// roughly sorted in storage.
type UUIDv7 struct{}

// New generates a new UUID v7, falling back to v4 if the clock source fails.
func (UUIDv7) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Sequential generates prefix1, prefix2, ... for tests and fixtures.
// Identifiers are only unique within one process.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Reset restarts the sequence.
func (s *Sequential) Reset() {
	s.counter.Store(0)
}

var (
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = UUIDv7{}
	_ ports.IDGenerator = (*Sequential)(nil)
)
