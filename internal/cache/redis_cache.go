package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisResultPrefix    = "newsfuse:result:"
	redisRateLimitPrefix = "newsfuse:rate_limit:"
)

// redisCache implements Cache backed by a Redis server. Result expiry is
// delegated to Redis key TTLs; the ExpiresAt stamp is still stored so the
// persisted trace round-trips losslessly.
type redisCache struct {
	client    *redis.Client
	resultTTL time.Duration
	now       func() time.Time
}

// openRedis connects to the Redis server at the given URL.
func openRedis(url string, opts Options) (Cache, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(ropts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &redisCache{
		client:    client,
		resultTTL: opts.ResultTTL,
		now:       time.Now,
	}, nil
}

func (r *redisCache) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *redisCache) GetResult(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := r.client.Get(ctx, redisResultPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if e.Expired(r.now()) {
		return nil, false, nil
	}
	return &e, true, nil
}

func (r *redisCache) PutResult(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return nil
	}

	e := *entry
	e.ExpiresAt = r.now().Add(r.resultTTL)
	raw, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.client.Set(ctx, redisResultPrefix+key, raw, r.resultTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *redisCache) GetRateLimitInfo(ctx context.Context, sourceID string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, redisRateLimitPrefix+sourceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return raw, true, nil
}

func (r *redisCache) PutRateLimitInfo(ctx context.Context, sourceID string, raw []byte) error {
	// No TTL: a stale window is discarded on restore, not here.
	if err := r.client.Set(ctx, redisRateLimitPrefix+sourceID, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
