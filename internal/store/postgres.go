package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/dedup"
)

// postgresStore implements Store backed by a pgx connection pool.
type postgresStore struct {
	pool *pgxpool.Pool
}

// openPostgres connects the pool and verifies the connection.
func openPostgres(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertArticleSQL = `
INSERT INTO articles (
	id, title, body, url, author, image_url, published_at,
	source_id, provider_ref, fingerprint, duplicate_group_id, cache_expires_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)
ON CONFLICT (id) DO UPDATE SET
	fingerprint = EXCLUDED.fingerprint,
	duplicate_group_id = EXCLUDED.duplicate_group_id,
	cache_expires_at = EXCLUDED.cache_expires_at`

const upsertGroupSQL = `
INSERT INTO duplicate_groups (id, canonical_id, member_count)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
	canonical_id = EXCLUDED.canonical_id,
	member_count = EXCLUDED.member_count`

// SaveBatch upserts one ingestion batch in a single transaction.
func (s *postgresStore) SaveBatch(ctx context.Context, articles []dedup.Deduped, groups []dedup.Group, cacheExpiry time.Time) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if len(articles) == 0 && len(groups) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, g := range groups {
			batch.Queue(upsertGroupSQL, g.ID, g.Canonical, len(g.Members))
		}
		for _, a := range articles {
			batch.Queue(upsertArticleSQL,
				a.ID, a.Title, a.Body, a.URL, a.Author, a.ImageURL, a.PublishedAt,
				a.SourceID, a.ProviderRef, a.Fingerprint, a.DuplicateGroupID, cacheExpiry,
			)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("persist batch item %d: %w", i, err)
			}
		}
		return nil
	})
}
