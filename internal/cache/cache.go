package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/dedup"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
)

// Package cache provides the key-value collaborator that memoizes per-source
// fetch results and persists rate-limit state across restarts.

// Entry is one memoized per-source fetch result. Reads after ExpiresAt are
// treated as misses and trigger a re-fetch.
type Entry struct {
	Articles  []domain.CandidateArticle `json:"articles"`
	HasMore   bool                      `json:"has_more"`
	ExpiresAt time.Time                 `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Cache is the collaborator contract. GetResult returns ok=false for both
// missing and expired entries.
type Cache interface {
	Close() error
	GetResult(ctx context.Context, key string) (*Entry, bool, error)
	PutResult(ctx context.Context, key string, entry *Entry) error
	GetRateLimitInfo(ctx context.Context, sourceID string) ([]byte, bool, error)
	PutRateLimitInfo(ctx context.Context, sourceID string, raw []byte) error
}

// Key derives the cache key for a source/query/page triple. The query is
// normalized so equivalent spellings share an entry.
func Key(sourceID, query string, page int) string {
	return sourceID + "|" + dedup.Normalize(query) + "|" + strconv.Itoa(page)
}

// Options controls retention characteristics for concrete cache implementations.
type Options struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

const (
	defaultResultTTL       = 15 * time.Minute
	defaultCleanupInterval = time.Hour
)

func normalizeOptions(opts Options) Options {
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = defaultResultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

// New creates the configured cache backend.
func New(typ, addr string, opts Options) (Cache, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopCache{}, nil
	case "bbolt":
		if strings.TrimSpace(addr) == "" {
			return nil, fmt.Errorf("bbolt cache requires a path")
		}
		return openBolt(addr, opts)
	case "redis":
		if strings.TrimSpace(addr) == "" {
			return nil, fmt.Errorf("redis cache requires a url")
		}
		return openRedis(addr, opts)
	default:
		return nil, fmt.Errorf("unsupported cache type %q", typ)
	}
}

// noopCache never hits and drops all writes.
type noopCache struct{}

func (noopCache) Close() error { return nil }
func (noopCache) GetResult(context.Context, string) (*Entry, bool, error) {
	return nil, false, nil
}
func (noopCache) PutResult(context.Context, string, *Entry) error { return nil }
func (noopCache) GetRateLimitInfo(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}
func (noopCache) PutRateLimitInfo(context.Context, string, []byte) error { return nil }
