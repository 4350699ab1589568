package sources

import (
	"errors"
	"fmt"
	"time"
)

// Kind categorizes fetch failures. Callers must not automatically retry
// invalid_query or invalid_response; rate_limited is deferred to the next
// scheduled batch; only unavailable is eligible for in-batch retry.
type Kind string

const (
	KindInvalidQuery    Kind = "invalid_query"
	KindInvalidResponse Kind = "invalid_response"
	KindRateLimited     Kind = "rate_limited"
	KindUnavailable     Kind = "unavailable"
	KindTimeout         Kind = "timeout"
)

// FetchError is the typed failure returned by source adapters and the
// rate limiter path of the orchestrator.
type FetchError struct {
	SourceID   string
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s: %s: %v", e.SourceID, e.Kind, e.Err)
	}
	return fmt.Sprintf("source %s: %s", e.SourceID, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with a source id and failure kind.
func NewFetchError(sourceID string, kind Kind, err error) *FetchError {
	return &FetchError{SourceID: sourceID, Kind: kind, Err: err}
}

// NewRateLimited builds a rate_limited failure carrying the retry-after hint.
func NewRateLimited(sourceID string, retryAfter time.Duration) *FetchError {
	return &FetchError{
		SourceID:   sourceID,
		Kind:       KindRateLimited,
		RetryAfter: retryAfter,
		Err:        fmt.Errorf("budget exhausted, retry after %s", retryAfter),
	}
}

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Retryable reports whether the error may be retried within the same batch.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindUnavailable
}

// RetryAfterOf returns the retry-after hint carried by a rate_limited error.
func RetryAfterOf(err error) time.Duration {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}
