package ingest

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/newsfuse-hq/newsfuse-ingest/pkg/sources"
)

// fetchWithRetry wraps a single adapter fetch in a bounded exponential
// backoff. Only transient outages (unavailable) are retried; every other
// failure kind aborts immediately. rate_limited in particular is deferred to
// the next scheduled batch rather than retried here.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, adapter sources.Adapter, desc sources.Descriptor, q sources.Query) (sources.Result, error) {
	var res sources.Result

	op := func() error {
		r, err := adapter.Fetch(ctx, desc, q)
		if err != nil {
			if sources.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		res = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.retryInitial

	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(o.retryAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return sources.Result{}, err
	}
	return res, nil
}
