package cache

import (
	"context"
	"testing"
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
)

func TestKeyNormalizesQuery(t *testing.T) {
	a := Key("src", "Senate   PASSES bill", 2)
	b := Key("src", "senate passes bill", 2)
	if a != b {
		t.Fatalf("equivalent queries must share a key: %q vs %q", a, b)
	}
	if a == Key("src", "senate passes bill", 3) {
		t.Fatalf("page must be part of the key")
	}
	if a == Key("other", "senate passes bill", 2) {
		t.Fatalf("source must be part of the key")
	}
}

func TestBoltCacheResultRoundTrip(t *testing.T) {
	dir := t.TempDir()
	raw, err := openBolt(dir+"/cache.db", normalizeOptions(Options{ResultTTL: time.Minute}))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	c := raw.(*boltCache)
	defer c.Close()

	ctx := context.Background()
	key := Key("src", "senate", 1)

	if _, ok, err := c.GetResult(ctx, key); err != nil || ok {
		t.Fatalf("expected cold miss, ok=%v err=%v", ok, err)
	}

	entry := &Entry{
		Articles: []domain.CandidateArticle{{ID: "a1", Title: "Senate Passes Bill", SourceID: "src"}},
		HasMore:  true,
	}
	if err := c.PutResult(ctx, key, entry); err != nil {
		t.Fatalf("PutResult: %v", err)
	}

	got, ok, err := c.GetResult(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if len(got.Articles) != 1 || got.Articles[0].ID != "a1" || !got.HasMore {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.ExpiresAt.IsZero() {
		t.Fatalf("PutResult must stamp an expiry")
	}
}

func TestBoltCacheExpiryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	raw, err := openBolt(dir+"/cache.db", normalizeOptions(Options{ResultTTL: time.Minute}))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	c := raw.(*boltCache)
	defer c.Close()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	key := Key("src", "senate", 1)
	if err := c.PutResult(ctx, key, &Entry{}); err != nil {
		t.Fatalf("PutResult: %v", err)
	}

	now = now.Add(2 * time.Minute)

	if _, ok, err := c.GetResult(ctx, key); err != nil || ok {
		t.Fatalf("expected expired entry to miss, ok=%v err=%v", ok, err)
	}
}

func TestBoltCacheRateLimitInfoRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := openBolt(dir+"/cache.db", normalizeOptions(Options{}))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, ok, err := c.GetRateLimitInfo(ctx, "src"); err != nil || ok {
		t.Fatalf("expected no state, ok=%v err=%v", ok, err)
	}

	payload := []byte(`{"used":3}`)
	if err := c.PutRateLimitInfo(ctx, "src", payload); err != nil {
		t.Fatalf("PutRateLimitInfo: %v", err)
	}

	got, ok, err := c.GetRateLimitInfo(ctx, "src")
	if err != nil || !ok {
		t.Fatalf("expected state, ok=%v err=%v", ok, err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: %s", got)
	}
}

func TestNewCacheSupportsNoop(t *testing.T) {
	c, err := New("none", "", Options{})
	if err != nil {
		t.Fatalf("New none: %v", err)
	}
	if err := c.PutResult(context.Background(), "k", &Entry{}); err != nil {
		t.Fatalf("noop PutResult: %v", err)
	}
	if _, ok, _ := c.GetResult(context.Background(), "k"); ok {
		t.Fatalf("noop cache must never hit")
	}
}

func TestNewCacheRejectsUnknownType(t *testing.T) {
	if _, err := New("memcached", "", Options{}); err == nil {
		t.Fatalf("expected error for unsupported cache type")
	}
}
