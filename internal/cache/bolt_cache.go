package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	resultBucket    = "results"
	rateLimitBucket = "rate_limits"
)

// boltCache implements Cache backed by an embedded BoltDB file.
type boltCache struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	resultTTL       time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed cache.
func openBolt(path string, opts Options) (Cache, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(resultBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(rateLimitBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	c := &boltCache{
		db:              db,
		resultTTL:       opts.ResultTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	c.lastCleanup.Store(time.Now().Unix())
	return c, nil
}

// Close closes the BoltDB cache.
func (b *boltCache) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// GetResult looks up a memoized fetch result; expired entries are deleted
// and reported as misses.
func (b *boltCache) GetResult(_ context.Context, key string) (*Entry, bool, error) {
	if b == nil || b.db == nil {
		return nil, false, nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return nil, false, err
	}

	var entry *Entry
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(resultBucket))
		if bucket == nil {
			return fmt.Errorf("result bucket missing")
		}

		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}

		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil || e.Expired(now) {
			return bucket.Delete([]byte(key))
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, entry != nil, nil
}

// PutResult memoizes a fetch result, stamping its expiry from the cache TTL.
func (b *boltCache) PutResult(_ context.Context, key string, entry *Entry) error {
	if b == nil || b.db == nil || entry == nil {
		return nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	e := *entry
	e.ExpiresAt = now.Add(b.resultTTL)
	raw, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(resultBucket))
		if bucket == nil {
			return fmt.Errorf("result bucket missing")
		}
		return bucket.Put([]byte(key), raw)
	})
}

// GetRateLimitInfo loads the persisted rate_limit_info payload for a source.
func (b *boltCache) GetRateLimitInfo(_ context.Context, sourceID string) ([]byte, bool, error) {
	if b == nil || b.db == nil {
		return nil, false, nil
	}

	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(rateLimitBucket))
		if bucket == nil {
			return fmt.Errorf("rate limit bucket missing")
		}
		if raw := bucket.Get([]byte(sourceID)); raw != nil {
			out = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// PutRateLimitInfo persists the rate_limit_info payload for a source.
func (b *boltCache) PutRateLimitInfo(_ context.Context, sourceID string, raw []byte) error {
	if b == nil || b.db == nil {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(rateLimitBucket))
		if bucket == nil {
			return fmt.Errorf("rate limit bucket missing")
		}
		return bucket.Put([]byte(sourceID), raw)
	})
}

// maybeCleanupExpired removes expired result entries on a fixed cadence to
// avoid unbounded growth.
func (b *boltCache) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(resultBucket))
		if bucket == nil {
			return fmt.Errorf("result bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil || e.Expired(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}
