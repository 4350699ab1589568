package sinks

import "context"

// Sink delivers ingested articles to a downstream system (SQS, SNS, Pub/Sub, HTTP).
type Sink interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}
