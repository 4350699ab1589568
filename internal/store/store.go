package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/dedup"
)

// Package store persists deduplicated articles and their duplicate-group
// links. The fingerprint, duplicate_group_id, and cache expiry columns are
// the durable trace of the pipeline's work and must round-trip losslessly.

// Store is the persistence collaborator contract.
type Store interface {
	Close()
	SaveBatch(ctx context.Context, articles []dedup.Deduped, groups []dedup.Group, cacheExpiry time.Time) error
}

// New creates the configured persistence backend.
func New(ctx context.Context, typ, dsn string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "postgres":
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("postgres store requires a dsn")
		}
		return openPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported store type %q", typ)
	}
}

type noopStore struct{}

func (noopStore) Close() {}
func (noopStore) SaveBatch(context.Context, []dedup.Deduped, []dedup.Group, time.Time) error {
	return nil
}
