package events

import (
	"context"

	"github.com/rs/zerolog"
)

// AuditHandler returns a hook that records each event at info level.
// Item events log the document id found under idField.
func AuditHandler(logger zerolog.Logger, idField string) Handler {
	return func(_ context.Context, event Event) error {
		entry := logger.Info().
			Str("point", string(event.Point)).
			Str("resource", event.Resource)

		switch event.Point {
		case BeforeBatch:
			entry = entry.Int("candidates", len(event.Candidates))
		case BeforeItemInsert, AfterItemInsert:
			if id, ok := event.Document[idField]; ok {
				entry = entry.Interface("id", id)
			}
		case AfterBatch:
			entry = entry.Int("persisted", len(event.Documents))
		}

		entry.Msg("write lifecycle")
		return nil
	}
}
