package sinks

import (
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/dedup"
)

// Event is the payload published downstream for one ingested article. The
// article carries its fingerprint and duplicate group id so consumers can
// honor the canonical/duplicate distinction without re-running deduplication.
type Event struct {
	SourceID   string        `json:"source_id"`
	SourceName string        `json:"source_name"`
	Article    dedup.Deduped `json:"article"`
	IngestedAt time.Time     `json:"ingested_at"`
}

// NewEvent constructs an Event for the given source + article.
func NewEvent(sourceID, sourceName string, article dedup.Deduped) Event {
	return Event{
		SourceID:   sourceID,
		SourceName: sourceName,
		Article:    article,
		IngestedAt: time.Now().UTC(),
	}
}
