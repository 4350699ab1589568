package sources

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/pkg/httpclient"
)

// ArticleID derives a stable article id from the source id and canonical URL.
func ArticleID(sourceID, url string) string {
	sum := sha1.Sum([]byte(sourceID + "|" + url))
	return hex.EncodeToString(sum[:])
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// DialectString returns the trimmed dialect value for key or a fallback.
// Dialect entries let a descriptor rename provider query parameters without
// code changes.
func DialectString(desc Descriptor, key, fallback string) string {
	if desc.Dialect != nil {
		if raw, ok := desc.Dialect[key]; ok {
			if trimmed := strings.TrimSpace(raw); trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}

// validateQuery enforces the shared adapter input constraints.
func validateQuery(desc Descriptor, q Query) error {
	if strings.TrimSpace(q.Text) == "" {
		return NewFetchError(desc.ID, KindInvalidQuery, fmt.Errorf("query text is empty"))
	}
	if q.Page < 1 {
		return NewFetchError(desc.ID, KindInvalidQuery, fmt.Errorf("page %d is below 1", q.Page))
	}
	if q.PageSize < 1 || q.PageSize > desc.MaxPageSize {
		return NewFetchError(desc.ID, KindInvalidQuery,
			fmt.Errorf("page size %d outside [1, %d]", q.PageSize, desc.MaxPageSize))
	}
	return nil
}

// classifyStatus maps a non-2xx provider response onto the failure taxonomy.
func classifyStatus(desc Descriptor, resp httpclient.Response) error {
	code := resp.StatusCode()
	switch {
	case code == http.StatusTooManyRequests:
		return NewRateLimited(desc.ID, parseRetryAfter(resp))
	case code == http.StatusBadRequest:
		return NewFetchError(desc.ID, KindInvalidQuery,
			fmt.Errorf("provider rejected query: %s", responseSnippet(resp.Body())))
	default:
		return NewFetchError(desc.ID, KindUnavailable,
			fmt.Errorf("status %d body: %s", code, responseSnippet(resp.Body())))
	}
}

// parseRetryAfter reads the Retry-After header (delta seconds), defaulting to
// the descriptor-independent fallback of 30s when absent or unparsable.
func parseRetryAfter(resp httpclient.Response) time.Duration {
	const fallback = 30 * time.Second

	raw := strings.TrimSpace(resp.Header("Retry-After"))
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// parsePublishedAt parses provider timestamps, tolerating the layouts seen in
// the wild. A zero time is returned when nothing matches; mapping never fails
// on a missing optional field.
func parsePublishedAt(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
