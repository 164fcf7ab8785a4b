package pipeline

import (
	"time"

	"github.com/artpar/docgate/core/events"
)

// Metrics observes batch processing. The prometheus adapter implements it.
type Metrics interface {
	BatchCompleted(resource, result string, d time.Duration)
	DocumentAccepted(resource string)
	DocumentRejected(resource string)
	PersistenceFailed(resource string)
	HookFailed(resource string, point events.Point)
}

type nopMetrics struct{}

func (nopMetrics) BatchCompleted(string, string, time.Duration) {}
func (nopMetrics) DocumentAccepted(string)                      {}
func (nopMetrics) DocumentRejected(string)                      {}
func (nopMetrics) PersistenceFailed(string)                     {}
func (nopMetrics) HookFailed(string, events.Point)              {}
