package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/logging"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// Cache is the conditional fetch the pipeline puts behind every connector.
// *cache.Cache satisfies it.
type Cache interface {
	Fetch(ctx context.Context, req cache.Request, v cache.Validators) (*cache.Result, error)
}

// fetcher is the sources.Fetcher handed to one connector for one run. It
// throttles, retries transport failures and keeps the counters the health
// rules need.
type fetcher struct {
	source  sources.ID
	cache   Cache
	limiter *rate.Limiter
	retry   config.RetryConfig

	mu         sync.Mutex
	fetches    int
	failures   int // fetches that ended in a transport error after retries
	changed    bool
	validators cache.Validators
}

func newFetcher(source sources.ID, c Cache, delay time.Duration, retry config.RetryConfig) *fetcher {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &fetcher{
		source:  source,
		cache:   c,
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
	}
}

var _ sources.Fetcher = (*fetcher)(nil)

// Fetch implements sources.Fetcher.
func (f *fetcher) Fetch(ctx context.Context, req cache.Request) (*cache.Result, error) {
	if req.Source == "" {
		req.Source = f.source.String()
	}
	logger := logging.FromContext(ctx)

	attempt := 0
	res, err := backoff.Retry(ctx, func() (*cache.Result, error) {
		attempt++
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		res, err := f.cache.Fetch(ctx, req, cache.Validators{})
		if err != nil && !errors.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(f.backOff()),
		backoff.WithMaxTries(uint(f.retry.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debug().
				Err(err).
				Str("url", req.URL).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("Retrying fetch")
		}),
	)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	switch {
	case err == nil:
		f.changed = f.changed || res.Changed
		f.validators = res.Validators
	case errors.IsTransport(err):
		f.failures++
	}
	return res, err
}

func (f *fetcher) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if f.retry.InitialInterval > 0 {
		b.InitialInterval = f.retry.InitialInterval
	}
	if f.retry.MaxInterval > 0 {
		b.MaxInterval = f.retry.MaxInterval
	}
	return b
}

type fetchStats struct {
	fetches    int
	failures   int
	changed    bool
	validators cache.Validators
}

func (f *fetcher) stats() fetchStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fetchStats{
		fetches:    f.fetches,
		failures:   f.failures,
		changed:    f.changed,
		validators: f.validators,
	}
}
