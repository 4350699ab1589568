package domain

import "time"

// Domain contains core models shared across the ingestion pipeline.

// CandidateArticle is a normalized article record prior to deduplication.
// Adapters produce it as a value object; it is never mutated afterwards and
// is safe to share across goroutines for read-only aggregation.
type CandidateArticle struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	Author      string    `json:"author,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	SourceID    string    `json:"source_id"`
	ProviderRef string    `json:"provider_ref"`
}
