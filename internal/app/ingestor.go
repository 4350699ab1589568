package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/cache"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/config"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/dedup"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/enrich"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/ingest"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/logger"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/ratelimit"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/store"
	"github.com/newsfuse-hq/newsfuse-ingest/pkg/sinks"
	"github.com/newsfuse-hq/newsfuse-ingest/pkg/sources"
)

// Ingestor represents the ingestion runtime. It owns the schedule loop,
// coordinating between source adapters, the rate limiter, the deduplication
// engine, the cache, the store, and downstream sinks.
type Ingestor struct {
	cfg       *config.Config
	sourceReg *sources.Registry
	orch      *ingest.Orchestrator
	limiter   *ratelimit.Limiter
	cache     cache.Cache
	store     store.Store
	fanout    *sinks.Fanout
	log       logger.Logger
}

// NewIngestor builds an ingestion runtime from config files.
func NewIngestor(ctx context.Context, cfg *config.Config, log logger.Logger) (*Ingestor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(cfg.Query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sourceReg, err := sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	sourceList := sourceReg.All()
	sourceIDs := make([]string, 0, len(sourceList))
	for _, d := range sourceList {
		sourceIDs = append(sourceIDs, d.ID)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count": len(sourceIDs),
		"ids":   sourceIDs,
	})

	fanout, err := buildFanout(ctx, cfg.SinksFile, log)
	if err != nil {
		return nil, err
	}

	c, err := openCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	log.InfoObj("cache initialized", "cache_config", map[string]any{
		"type":        cfg.CacheType,
		"ttl_seconds": int(cfg.CacheTTL.Seconds()),
	})

	st, err := store.New(ctx, cfg.StoreType, cfg.PostgresDSN)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	log.InfoObj("store initialized", "store_config", map[string]any{
		"type": cfg.StoreType,
	})

	limiter := ratelimit.NewLimiter(sources.RateLimitPolicy{})
	for _, d := range sourceList {
		limiter.Configure(d.ID, d.RateLimit)
		if raw, ok, err := c.GetRateLimitInfo(ctx, d.ID); err == nil && ok {
			if err := limiter.Restore(d.ID, d.RateLimit, raw); err != nil {
				log.WarnObj("rate limit state restore failed", "rate_limit_restore", map[string]any{
					"source_id": d.ID,
					"error":     err.Error(),
				})
			}
		}
	}

	var enricher ingest.Enricher
	if cfg.EnrichArticles {
		enricher = enrich.NewScraper(nil, 0, log)
	}

	orch := ingest.NewOrchestrator(
		sources.DefaultAdapterRegistry(nil),
		limiter,
		c,
		dedup.NewGrouper(cfg.SimilarityThreshold),
		enricher,
		log,
		ingest.Options{
			Workers:          cfg.Workers,
			RetryMaxAttempts: cfg.RetryMaxAttempts,
		},
	)

	return &Ingestor{
		cfg:       cfg,
		sourceReg: sourceReg,
		orch:      orch,
		limiter:   limiter,
		cache:     c,
		store:     st,
		fanout:    fanout,
		log:       log,
	}, nil
}

// buildFanout loads the sink registry and instantiates enabled sinks. A
// deployment with no sinks still stores and caches, so the fanout may be empty.
func buildFanout(ctx context.Context, sinksFile string, log logger.Logger) (*sinks.Fanout, error) {
	sinkReg, err := sinks.LoadRegistry(sinksFile)
	if err != nil {
		return nil, fmt.Errorf("load sinks registry: %w", err)
	}

	enabledSinks := sinkReg.Enabled()
	if len(enabledSinks) == 0 {
		log.WarnObj("no sinks enabled; articles will not be published", "sinks_file", sinksFile)
		return sinks.NewFanout(nil), nil
	}

	clients, err := sinks.BuildAll(ctx, sinks.DefaultRegistry(), enabledSinks, log)
	if err != nil {
		return nil, fmt.Errorf("build sinks: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabledSinks))
	for _, cfg := range enabledSinks {
		summaries = append(summaries, map[string]string{
			"id":   cfg.ID,
			"type": cfg.Type,
		})
	}
	log.InfoObj("sinks registry loaded", "sinks_meta", map[string]any{
		"count": len(summaries),
		"sinks": summaries,
	})

	return sinks.NewFanout(clients), nil
}

func openCache(cfg *config.Config) (cache.Cache, error) {
	addr := ""
	switch strings.ToLower(strings.TrimSpace(cfg.CacheType)) {
	case "bbolt":
		addr = cfg.BBoltPath
	case "redis":
		addr = cfg.RedisURL
	}
	return cache.New(cfg.CacheType, addr, cache.Options{ResultTTL: cfg.CacheTTL})
}

// Run starts the ingestion schedule until the context is cancelled.
func (in *Ingestor) Run(ctx context.Context) error {
	if in == nil || in.orch == nil {
		return fmt.Errorf("ingestor is not initialized")
	}
	defer in.closeAll()

	enabled := in.sourceReg.Enabled()
	if len(enabled) == 0 {
		in.log.WarnObj("no sources enabled; ingestor idle", "sources_file", in.cfg.SourcesFile)
		<-ctx.Done()
		return ctx.Err()
	}

	in.log.InfoObj("ingestion loop starting", "ingestor_state", map[string]any{
		"sources_count": len(enabled),
		"sinks_count":   in.fanout.Size(),
		"schedule":      in.cfg.IngestSchedule,
	})

	in.runOnce(ctx)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(in.cfg.IngestSchedule, func() {
		in.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid ingest_schedule %q: %w", in.cfg.IngestSchedule, err)
	}
	scheduler.Start()

	<-ctx.Done()
	in.log.InfoObj("ingestion loop exiting", "reason", ctx.Err())

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	return nil
}

// runOnce performs a single ingestion batch across all enabled sources.
func (in *Ingestor) runOnce(ctx context.Context) {
	start := time.Now()
	bctx, cancel := context.WithTimeout(ctx, in.cfg.BatchTimeout)
	defer cancel()

	q := sources.Query{
		Text:     in.cfg.Query,
		Page:     1,
		PageSize: in.cfg.PageSize,
	}

	res, err := in.orch.Ingest(bctx, in.sourceReg.Enabled(), q)
	if err != nil {
		in.log.ErrorObj("ingestion batch failed", "error", err)
		in.persistLimiterState(ctx)
		return
	}

	in.persistLimiterState(ctx)
	in.persistBatch(bctx, res)
	in.publish(bctx, res.Articles)

	in.log.InfoObj("ingestion batch finished", "batch_meta", map[string]any{
		"articles":         len(res.Articles),
		"duplicate_groups": len(res.Groups),
		"source_errors":    len(res.SourceErrors),
		"cache_hits":       res.CacheHits,
		"elapsed_ms":       time.Since(start).Milliseconds(),
	})
}

// persistLimiterState snapshots per-source budgets so a restart does not
// grant a fresh window.
func (in *Ingestor) persistLimiterState(ctx context.Context) {
	for _, d := range in.sourceReg.All() {
		raw, err := in.limiter.Snapshot(d.ID)
		if err != nil || raw == nil {
			continue
		}
		if err := in.cache.PutRateLimitInfo(ctx, d.ID, raw); err != nil {
			in.log.WarnObj("rate limit state persist failed", "rate_limit_persist", map[string]any{
				"source_id": d.ID,
				"error":     err.Error(),
			})
		}
	}
}

func (in *Ingestor) persistBatch(ctx context.Context, res *ingest.Result) {
	expiry := time.Now().Add(in.cfg.CacheTTL)
	if err := in.store.SaveBatch(ctx, res.Articles, res.Groups, expiry); err != nil {
		in.log.ErrorObj("store save failed", "error", err)
	}
}

func (in *Ingestor) publish(ctx context.Context, articles []dedup.Deduped) {
	if in.fanout.Size() == 0 || len(articles) == 0 {
		return
	}

	published := 0
	for _, art := range articles {
		name := art.SourceID
		if desc, ok := in.sourceReg.ByID(art.SourceID); ok {
			name = desc.Name
		}
		evt := sinks.NewEvent(art.SourceID, name, art)
		if n, err := in.fanout.Publish(ctx, evt); err != nil {
			in.log.WarnObj("sink publish partially failed", "publish_error", map[string]any{
				"article_id": art.ID,
				"delivered":  n,
				"error":      err.Error(),
			})
		} else {
			published++
		}
	}

	in.log.DebugObj("batch published", "publish_meta", map[string]any{
		"articles":  len(articles),
		"published": published,
	})
}

// closeAll releases the cache, store, and sink resources, logging failures.
func (in *Ingestor) closeAll() {
	if in == nil {
		return
	}
	if err := in.fanout.Close(); err != nil {
		in.log.ErrorObj("sinks close failed", "error", err)
	}
	in.store.Close()
	if err := in.cache.Close(); err != nil {
		in.log.ErrorObj("cache close failed", "error", err)
	}
}
