package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/cache"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/dedup"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/logger"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/ratelimit"
	"github.com/newsfuse-hq/newsfuse-ingest/pkg/sources"
)

// Package ingest coordinates one batch: rate-limited concurrent fan-out to
// all enabled sources, cross-source deduplication, and cache bookkeeping.

// SourceError records why one source produced nothing this batch. The batch
// itself still succeeds while at least one source returns results.
type SourceError struct {
	SourceID   string        `json:"source_id"`
	Kind       sources.Kind  `json:"kind"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Result is the outcome of one ingestion batch.
type Result struct {
	Articles     []dedup.Deduped `json:"articles"`
	Groups       []dedup.Group   `json:"groups"`
	SourceErrors []SourceError   `json:"source_errors,omitempty"`
	CacheHits    int             `json:"cache_hits"`
}

// AllSourcesError is returned when every source failed; it carries the
// per-source reasons so the caller never sees a silent total failure.
type AllSourcesError struct {
	Errors []SourceError
}

func (e *AllSourcesError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, se := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", se.SourceID, se.Kind))
	}
	return "all sources unavailable: " + strings.Join(parts, "; ")
}

// Enricher fills article fields the provider API left empty.
type Enricher interface {
	Enrich(ctx context.Context, desc sources.Descriptor, articles []domain.CandidateArticle) []domain.CandidateArticle
}

// Options tunes the orchestrator.
type Options struct {
	Workers           int
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
}

const (
	defaultWorkers      = 4
	defaultRetryMax     = 3
	defaultRetryInitial = 200 * time.Millisecond
)

// Orchestrator fans a query out to all enabled sources, respecting each
// source's budget, and fans the results into one deduplicated set.
type Orchestrator struct {
	adapters sources.AdapterRegistry
	limiter  *ratelimit.Limiter
	cache    cache.Cache
	grouper  *dedup.Grouper
	enricher Enricher
	log      logger.Logger

	workers       int
	retryAttempts int
	retryInitial  time.Duration
}

// NewOrchestrator wires an orchestrator. The enricher is optional; cache may
// be a noop implementation.
func NewOrchestrator(
	adapters sources.AdapterRegistry,
	limiter *ratelimit.Limiter,
	c cache.Cache,
	grouper *dedup.Grouper,
	enricher Enricher,
	log logger.Logger,
	opts Options,
) *Orchestrator {
	if c == nil {
		c, _ = cache.New("none", "", cache.Options{})
	}
	if grouper == nil {
		grouper = dedup.NewGrouper(dedup.DefaultThreshold)
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.RetryMaxAttempts <= 0 {
		opts.RetryMaxAttempts = defaultRetryMax
	}
	if opts.RetryInitialDelay <= 0 {
		opts.RetryInitialDelay = defaultRetryInitial
	}

	return &Orchestrator{
		adapters:      adapters,
		limiter:       limiter,
		cache:         c,
		grouper:       grouper,
		enricher:      enricher,
		log:           log,
		workers:       opts.Workers,
		retryAttempts: opts.RetryMaxAttempts,
		retryInitial:  opts.RetryInitialDelay,
	}
}

type sourceOutcome struct {
	sourceID string
	articles []domain.CandidateArticle
	cached   bool
	err      error
}

// Ingest runs one batch across the given sources. Per-source failures are
// recovered locally; only total failure surfaces as an error.
func (o *Orchestrator) Ingest(ctx context.Context, descs []sources.Descriptor, q sources.Query) (*Result, error) {
	if o == nil || o.adapters == nil || o.limiter == nil {
		return nil, fmt.Errorf("orchestrator is not initialized")
	}

	enabled := make([]sources.Descriptor, 0, len(descs))
	for _, d := range descs {
		if d.EnabledValue() {
			enabled = append(enabled, d)
		}
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no enabled sources to ingest")
	}

	outcomes := o.fanOut(ctx, enabled, q)

	merged := make([]domain.CandidateArticle, 0)
	srcErrs := make([]SourceError, 0)
	cacheHits := 0
	succeeded := 0

	for _, out := range outcomes {
		if out.err != nil {
			srcErrs = append(srcErrs, toSourceError(out.sourceID, out.err))
			o.log.WarnObj("source fetch failed", "source_error", map[string]any{
				"source_id": out.sourceID,
				"error":     out.err.Error(),
			})
			continue
		}
		succeeded++
		if out.cached {
			cacheHits++
		}
		merged = append(merged, out.articles...)
	}

	if succeeded == 0 {
		return nil, &AllSourcesError{Errors: srcErrs}
	}

	// Deduplication is cross-source: one pass over the full merged set.
	deduped, groups := o.grouper.Group(merged)

	o.log.InfoObj("batch completed", "batch_result", map[string]any{
		"sources_total":     len(enabled),
		"sources_succeeded": succeeded,
		"cache_hits":        cacheHits,
		"articles":          len(deduped),
		"duplicate_groups":  len(groups),
	})

	return &Result{
		Articles:     deduped,
		Groups:       groups,
		SourceErrors: srcErrs,
		CacheHits:    cacheHits,
	}, nil
}

// fanOut runs one fetch task per source through a bounded worker pool and
// collects outcomes in descriptor order.
func (o *Orchestrator) fanOut(ctx context.Context, descs []sources.Descriptor, q sources.Query) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(descs))
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	for i, desc := range descs {
		wg.Add(1)
		go func(i int, desc sources.Descriptor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = o.runSource(ctx, desc, q)
		}(i, desc)
	}
	wg.Wait()

	return outcomes
}

// runSource executes the per-source pipeline: cache lookup, budget check,
// rate-limited fetch with bounded retry, optional enrichment, cache write.
func (o *Orchestrator) runSource(ctx context.Context, desc sources.Descriptor, q sources.Query) sourceOutcome {
	out := sourceOutcome{sourceID: desc.ID}

	key := cache.Key(desc.ID, q.Text, q.Page)
	if entry, ok, err := o.cache.GetResult(ctx, key); err != nil {
		o.log.WarnObj("cache lookup failed", "cache_error", map[string]any{
			"source_id": desc.ID,
			"error":     err.Error(),
		})
	} else if ok {
		out.articles = entry.Articles
		out.cached = true
		return out
	}

	// The budget is consumed before the outbound call; a denied source is
	// skipped for this batch, never the whole batch.
	decision := o.limiter.CheckAndConsume(desc.ID)
	if !decision.Allowed {
		out.err = sources.NewRateLimited(desc.ID, decision.RetryAfter)
		return out
	}

	adapter, err := o.adapters.AdapterFor(desc)
	if err != nil {
		out.err = sources.NewFetchError(desc.ID, sources.KindUnavailable, err)
		return out
	}

	res, err := o.fetchWithRetry(ctx, adapter, desc, q)
	if err != nil {
		out.err = err
		return out
	}

	articles := res.Articles
	if o.enricher != nil {
		articles = o.enricher.Enrich(ctx, desc, articles)
	}
	out.articles = articles

	if err := o.cache.PutResult(ctx, key, &cache.Entry{Articles: articles, HasMore: res.HasMore}); err != nil {
		o.log.WarnObj("cache write failed", "cache_error", map[string]any{
			"source_id": desc.ID,
			"error":     err.Error(),
		})
	}

	return out
}

func toSourceError(sourceID string, err error) SourceError {
	se := SourceError{
		SourceID: sourceID,
		Message:  err.Error(),
	}

	var fe *sources.FetchError
	if errors.As(err, &fe) {
		se.Kind = fe.Kind
		se.RetryAfter = fe.RetryAfter
	} else if errors.Is(err, context.DeadlineExceeded) {
		se.Kind = sources.KindTimeout
	} else {
		se.Kind = sources.KindUnavailable
	}
	return se
}
