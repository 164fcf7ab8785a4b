// Package ports defines the infrastructure contracts the write pipeline
// depends on. Implementations live in adapters/.
package ports

import "time"

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates document identifiers.
// Identifiers must be unique within a resource.
type IDGenerator interface {
	New() string
}
