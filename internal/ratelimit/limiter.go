package ratelimit

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/pkg/sources"
)

// Package ratelimit enforces per-source request budgets. Each source gets a
// sliding window of MaxRequests per Window plus an independent burst bucket
// of Burst tokens replenished continuously at MaxRequests/Window. A call is
// admitted while either resource has capacity, so admissions in any window
// never exceed MaxRequests + Burst.

// Decision is the outcome of a CheckAndConsume call. The limiter never
// returns an error: a denied call carries a computed RetryAfter hint.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// State is the serializable per-source limiter state (the rate_limit_info
// payload persisted by the cache collaborator).
type State struct {
	WindowStart time.Time `json:"window_start"`
	Used        int       `json:"used"`
	BurstTokens float64   `json:"burst_tokens"`
	LastRefill  time.Time `json:"last_refill"`
}

type sourceState struct {
	policy sources.RateLimitPolicy
	state  State
}

// Limiter owns all mutable rate-limit state behind a single mutex. Counter
// access is exposed only through CheckAndConsume; checks and consumption are
// atomic as a unit.
type Limiter struct {
	mu     sync.Mutex
	bySrc  map[string]*sourceState
	now    func() time.Time
	defPol sources.RateLimitPolicy
}

// NewLimiter builds a limiter with the given fallback policy for sources
// that were never configured explicitly.
func NewLimiter(defaultPolicy sources.RateLimitPolicy) *Limiter {
	if defaultPolicy.WindowSeconds <= 0 {
		defaultPolicy.WindowSeconds = 60
	}
	if defaultPolicy.MaxRequests <= 0 {
		defaultPolicy.MaxRequests = 10
	}
	return &Limiter{
		bySrc:  make(map[string]*sourceState),
		now:    time.Now,
		defPol: defaultPolicy,
	}
}

// Configure registers (or replaces) the policy for a source. Existing
// counters are preserved so a config reload does not grant a fresh budget.
func (l *Limiter) Configure(sourceID string, policy sources.RateLimitPolicy) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.bySrc[sourceID]; ok {
		st.policy = policy
		return
	}
	l.bySrc[sourceID] = l.freshState(policy)
}

func (l *Limiter) freshState(policy sources.RateLimitPolicy) *sourceState {
	now := l.now()
	return &sourceState{
		policy: policy,
		state: State{
			WindowStart: now,
			BurstTokens: float64(policy.Burst),
			LastRefill:  now,
		},
	}
}

// CheckAndConsume atomically checks the budget for sourceID and consumes one
// request when allowed. State is created lazily on first use.
func (l *Limiter) CheckAndConsume(sourceID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.bySrc[sourceID]
	if !ok {
		st = l.freshState(l.defPol)
		l.bySrc[sourceID] = st
	}

	now := l.now()
	window := st.policy.Window()

	// Lazy window reset: no background timer is needed for correctness.
	if now.Sub(st.state.WindowStart) >= window {
		st.state.WindowStart = now
		st.state.Used = 0
	}

	l.refillBurst(st, now)

	if st.state.Used < st.policy.MaxRequests {
		st.state.Used++
		return Decision{Allowed: true, Remaining: l.remaining(st)}
	}
	if st.state.BurstTokens >= 1 {
		st.state.BurstTokens--
		return Decision{Allowed: true, Remaining: l.remaining(st)}
	}

	return Decision{Allowed: false, RetryAfter: l.retryAfter(st, now)}
}

// refillBurst replenishes the burst bucket at MaxRequests/Window, capped at
// the configured burst allowance.
func (l *Limiter) refillBurst(st *sourceState, now time.Time) {
	if st.policy.Burst <= 0 {
		st.state.LastRefill = now
		return
	}
	elapsed := now.Sub(st.state.LastRefill)
	if elapsed <= 0 {
		return
	}
	rate := float64(st.policy.MaxRequests) / st.policy.Window().Seconds()
	st.state.BurstTokens = math.Min(
		float64(st.policy.Burst),
		st.state.BurstTokens+rate*elapsed.Seconds(),
	)
	st.state.LastRefill = now
}

func (l *Limiter) remaining(st *sourceState) int {
	return st.policy.MaxRequests - st.state.Used + int(st.state.BurstTokens)
}

// retryAfter is the sooner of the window boundary and, when bursting is
// configured, the instant the burst bucket reaches one token.
func (l *Limiter) retryAfter(st *sourceState, now time.Time) time.Duration {
	untilWindow := st.state.WindowStart.Add(st.policy.Window()).Sub(now)
	if untilWindow < 0 {
		untilWindow = 0
	}

	if st.policy.Burst > 0 {
		rate := float64(st.policy.MaxRequests) / st.policy.Window().Seconds()
		if rate > 0 {
			deficit := 1 - st.state.BurstTokens
			untilToken := time.Duration(deficit / rate * float64(time.Second))
			if untilToken < untilWindow {
				return untilToken
			}
		}
	}
	return untilWindow
}

// Snapshot serializes the state for a source so it can survive restarts.
// Returns nil when the source has no state yet.
func (l *Limiter) Snapshot(sourceID string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.bySrc[sourceID]
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(st.state)
	if err != nil {
		return nil, fmt.Errorf("marshal rate limit state: %w", err)
	}
	return raw, nil
}

// Restore rehydrates a source's state from a persisted snapshot so a process
// restart does not reset its budget mid-window. The snapshot is ignored when
// its window has already elapsed.
func (l *Limiter) Restore(sourceID string, policy sources.RateLimitPolicy, raw []byte) error {
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("unmarshal rate limit state: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.freshState(policy)
	now := l.now()
	if now.Sub(state.WindowStart) < policy.Window() {
		st.state = state
		if st.state.BurstTokens > float64(policy.Burst) {
			st.state.BurstTokens = float64(policy.Burst)
		}
	}
	l.bySrc[sourceID] = st
	return nil
}
