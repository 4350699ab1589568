package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/pkg/sources"
)

func testPolicy(window time.Duration, max, burst int) sources.RateLimitPolicy {
	return sources.RateLimitPolicy{
		WindowSeconds: int(window / time.Second),
		MaxRequests:   max,
		Burst:         burst,
	}
}

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(policy sources.RateLimitPolicy) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(policy)
	l.now = clock.Now
	return l, clock
}

func TestLimiterAdmitsUpToWindowBudget(t *testing.T) {
	l, _ := newTestLimiter(testPolicy(time.Minute, 3, 0))

	for i := 0; i < 3; i++ {
		if d := l.CheckAndConsume("s1"); !d.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	d := l.CheckAndConsume("s1")
	if d.Allowed {
		t.Fatalf("fourth call should be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", d.RetryAfter)
	}
}

func TestLimiterBurstExtendsBudget(t *testing.T) {
	l, _ := newTestLimiter(testPolicy(time.Minute, 2, 2))

	admitted := 0
	for i := 0; i < 10; i++ {
		if l.CheckAndConsume("s1").Allowed {
			admitted++
		}
	}
	if admitted != 4 {
		t.Fatalf("expected N+B=4 admissions, got %d", admitted)
	}
}

func TestLimiterWindowResetsLazily(t *testing.T) {
	l, clock := newTestLimiter(testPolicy(time.Minute, 1, 0))

	if !l.CheckAndConsume("s1").Allowed {
		t.Fatalf("first call should pass")
	}
	if l.CheckAndConsume("s1").Allowed {
		t.Fatalf("budget should be spent")
	}

	clock.Advance(time.Minute + time.Second)

	if !l.CheckAndConsume("s1").Allowed {
		t.Fatalf("call after window elapsed should be allowed again")
	}
}

func TestLimiterBurstReplenishesContinuously(t *testing.T) {
	// 60 requests/minute => one burst token per second.
	l, clock := newTestLimiter(testPolicy(time.Minute, 60, 2))

	for i := 0; i < 62; i++ {
		if !l.CheckAndConsume("s1").Allowed {
			t.Fatalf("call %d should be allowed (N+B=62)", i)
		}
	}
	if l.CheckAndConsume("s1").Allowed {
		t.Fatalf("budget exhausted, call should be denied")
	}

	clock.Advance(1500 * time.Millisecond)

	if !l.CheckAndConsume("s1").Allowed {
		t.Fatalf("one burst token should have replenished")
	}
	if l.CheckAndConsume("s1").Allowed {
		t.Fatalf("only one token should have replenished")
	}
}

func TestLimiterSafetyUnderConcurrentCallers(t *testing.T) {
	const (
		callers = 16
		perCall = 50
		max     = 20
		burst   = 5
	)
	l := NewLimiter(testPolicy(time.Hour, max, burst))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := 0
			for j := 0; j < perCall; j++ {
				if l.CheckAndConsume("shared").Allowed {
					local++
				}
			}
			mu.Lock()
			admitted += local
			mu.Unlock()
		}()
	}
	wg.Wait()

	if admitted > max+burst {
		t.Fatalf("over-admission: %d > N+B=%d", admitted, max+burst)
	}
	if admitted < max {
		t.Fatalf("under-admission: %d < N=%d", admitted, max)
	}
}

func TestLimiterLivenessAfterDenial(t *testing.T) {
	l, clock := newTestLimiter(testPolicy(time.Minute, 1, 0))

	l.CheckAndConsume("s1")
	d := l.CheckAndConsume("s1")
	if d.Allowed {
		t.Fatalf("expected denial")
	}

	clock.Advance(d.RetryAfter + time.Millisecond)

	if !l.CheckAndConsume("s1").Allowed {
		t.Fatalf("source must become allowed after retry-after elapses")
	}
}

func TestLimiterPerSourceIsolation(t *testing.T) {
	l, _ := newTestLimiter(testPolicy(time.Minute, 1, 0))

	if !l.CheckAndConsume("s1").Allowed {
		t.Fatalf("s1 first call should pass")
	}
	if !l.CheckAndConsume("s2").Allowed {
		t.Fatalf("s2 budget must be independent of s1")
	}
}

func TestLimiterSnapshotRestoreRoundTrip(t *testing.T) {
	policy := testPolicy(time.Hour, 5, 1)
	l, clock := newTestLimiter(policy)
	l.Configure("s1", policy)

	for i := 0; i < 5; i++ {
		l.CheckAndConsume("s1")
	}

	raw, err := l.Snapshot("s1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if raw == nil {
		t.Fatalf("expected snapshot payload")
	}

	// Simulate a restart: a fresh limiter restored mid-window keeps the
	// consumed budget instead of granting a new one.
	l2 := NewLimiter(policy)
	l2.now = clock.Now
	if err := l2.Restore("s1", policy, raw); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// Window budget is spent; only the single burst token remains.
	if !l2.CheckAndConsume("s1").Allowed {
		t.Fatalf("burst token should admit one more call")
	}
	if l2.CheckAndConsume("s1").Allowed {
		t.Fatalf("restored state must not reset the window budget")
	}
}

func TestLimiterRestoreIgnoresStaleWindow(t *testing.T) {
	policy := testPolicy(time.Minute, 2, 0)
	l, clock := newTestLimiter(policy)
	l.Configure("s1", policy)
	l.CheckAndConsume("s1")
	l.CheckAndConsume("s1")

	raw, err := l.Snapshot("s1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	clock.Advance(2 * time.Minute)

	l2 := NewLimiter(policy)
	l2.now = clock.Now
	if err := l2.Restore("s1", policy, raw); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !l2.CheckAndConsume("s1").Allowed {
		t.Fatalf("stale snapshot must not carry a spent budget into a new window")
	}
}
