// Package fundingscape assembles the reconciliation engine from a
// configuration: the conditional cache over its blob store, the canonical
// store, the registered connectors and the pipeline that runs them.
//
// Example usage:
//
//	cfg, err := config.Load("")
//	if err != nil { ... }
//	fs, err := fundingscape.New(ctx, cfg)
//	if err != nil { ... }
//	defer fs.Close()
//
//	report, err := fs.Update(ctx, pipeline.RunOptions{})
//	changes, err := fs.LatestChanges(ctx)
package fundingscape

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentstation/fundingscape/internal/blob"
	"github.com/agentstation/fundingscape/internal/sources/registry"
	"github.com/agentstation/fundingscape/pkg/authority"
	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/logging"
	"github.com/agentstation/fundingscape/pkg/metrics"
	"github.com/agentstation/fundingscape/pkg/pipeline"
	"github.com/agentstation/fundingscape/pkg/reconciler"
	"github.com/agentstation/fundingscape/pkg/sources"
	"github.com/agentstation/fundingscape/pkg/store"
	"github.com/agentstation/fundingscape/pkg/store/sqlite"
)

// Fundingscape runs updates and answers questions about the stored state.
type Fundingscape interface {
	// Update runs the pipeline once and fires the change hooks after a
	// successful commit.
	Update(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Report, error)

	// Changes returns change-log entries matching q.
	Changes(ctx context.Context, q store.ChangeQuery) ([]grants.ChangeLogEntry, error)

	// LatestChanges returns the entries of the most recent run that recorded any.
	LatestChanges(ctx context.Context) ([]grants.ChangeLogEntry, error)

	// Sources returns a run record for every configured source, including
	// those never fetched.
	Sources(ctx context.Context) ([]grants.SourceRunRecord, error)

	// Clusters returns the canonical grants.
	Clusters(ctx context.Context) ([]grants.CanonicalGrant, error)

	// CoalescedGrants returns every canonical grant with its members'
	// awards merged: the primary's fields, gaps filled from the aliases in
	// priority order.
	CoalescedGrants(ctx context.Context) ([]grants.CoalescedGrant, error)

	// CacheEntries lists what the conditional cache holds.
	CacheEntries(ctx context.Context) ([]cache.Meta, error)

	// OnChange registers a hook called for every committed change-log entry.
	OnChange(ChangeHook)

	// OnRun registers a hook called after every update, committed or not.
	OnRun(RunHook)

	// Config returns the configuration in use.
	Config() *config.Config

	// Close releases the store.
	Close() error
}

var _ Fundingscape = (*client)(nil)

// client is the default Fundingscape.
type client struct {
	cfg      *config.Config
	options  *options
	cache    *cache.Cache
	store    store.Store
	pipeline *pipeline.Pipeline
	hooks    *hooks

	// One update at a time; a second caller waits.
	updateMu sync.Mutex

	closeOnce sync.Once
	ownsStore bool
}

// New validates cfg and opens everything it names. Stores and blob
// backends passed as options are used as given and not closed by Close.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (Fundingscape, error) {
	if cfg == nil {
		return nil, errors.NewConfigError("fundingscape", "configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o, err := newOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("applying options: %w", err)
	}
	// Source options are checked even when connectors are injected.
	connectors, err := registry.Connectors(cfg)
	if err != nil {
		return nil, err
	}
	if o.connectors != nil {
		connectors = o.connectors
	}

	c := &client{cfg: cfg, options: o, hooks: newHooks()}

	backend := o.blobs
	if backend == nil {
		if backend, err = blob.Open(ctx, cfg.Cache.Location, cfg.Cache.S3); err != nil {
			return nil, err
		}
	}

	var m *metrics.Metrics
	if o.registerer != nil {
		m = metrics.New(o.registerer)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = cache.NewHTTPClient(cfg.Pipeline.HTTPTimeout)
	}
	cacheOpts := []cache.Option{
		cache.WithClient(httpClient),
		cache.WithUserAgent(cfg.Pipeline.UserAgent),
		cache.WithMetrics(m),
	}
	if o.now != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(o.now))
	}
	c.cache = cache.New(backend, cacheOpts...)

	c.store = o.store
	if c.store == nil {
		st, err := sqlite.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		c.store = st
		c.ownsStore = true
	}

	pipelineOpts := []pipeline.Option{pipeline.WithMetrics(m)}
	if o.now != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithClock(o.now))
	}
	if o.runIDs != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithRunIDs(o.runIDs))
	}
	c.pipeline, err = pipeline.New(cfg, c.cache, c.store, connectors, pipelineOpts...)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	logging.FromContext(ctx).Debug().
		Str("cache", cfg.Cache.Location).
		Str("store", cfg.Store.Path).
		Int("connectors", connectors.Len()).
		Msg("Opened fundingscape")
	return c, nil
}

// Update implements Fundingscape.
func (c *client) Update(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Report, error) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	report, err := c.pipeline.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	if report.Committed {
		// Entries were committed under the run id; read them back so the
		// hooks see sequence numbers.
		changes, err := c.store.Changes(ctx, store.ChangeQuery{RunID: report.RunID})
		if err != nil {
			return report, err
		}
		c.hooks.triggerChanges(changes)
	}
	c.hooks.triggerRun(report)
	return report, nil
}

// Changes implements Fundingscape.
func (c *client) Changes(ctx context.Context, q store.ChangeQuery) ([]grants.ChangeLogEntry, error) {
	return c.store.Changes(ctx, q)
}

// LatestChanges implements Fundingscape.
func (c *client) LatestChanges(ctx context.Context) ([]grants.ChangeLogEntry, error) {
	return c.store.LatestChanges(ctx)
}

// Sources implements Fundingscape.
func (c *client) Sources(ctx context.Context) ([]grants.SourceRunRecord, error) {
	ids := make([]sources.ID, 0, len(c.cfg.Sources))
	for _, id := range sources.IDs() {
		if _, ok := c.cfg.Sources[id.String()]; ok {
			ids = append(ids, id)
		}
	}
	return pipeline.SourceStatus(ctx, c.store, ids)
}

// Clusters implements Fundingscape.
func (c *client) Clusters(ctx context.Context) ([]grants.CanonicalGrant, error) {
	return c.store.Clusters(ctx)
}

// CoalescedGrants implements Fundingscape.
func (c *client) CoalescedGrants(ctx context.Context) ([]grants.CoalescedGrant, error) {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return reconciler.Coalesce(snap, authority.New(c.cfg.Priority)), nil
}

// CacheEntries implements Fundingscape.
func (c *client) CacheEntries(ctx context.Context) ([]cache.Meta, error) {
	return c.cache.Entries(ctx)
}

// OnChange implements Fundingscape.
func (c *client) OnChange(fn ChangeHook) { c.hooks.OnChange(fn) }

// OnRun implements Fundingscape.
func (c *client) OnRun(fn RunHook) { c.hooks.OnRun(fn) }

// Config implements Fundingscape.
func (c *client) Config() *config.Config { return c.cfg }

// Close implements Fundingscape.
func (c *client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.ownsStore && c.store != nil {
			err = c.store.Close()
		}
	})
	return err
}

