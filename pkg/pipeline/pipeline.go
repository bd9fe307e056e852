// Package pipeline runs a fundingscape update: every enabled connector in a
// bounded worker pool, the reconciler over everything they staged, and one
// commit to the store.
//
// Connectors share nothing until the reconciler stage. A source that fails
// is recorded as such and the run continues; only configuration errors,
// store failures and cancellation abort a run, and an aborted run commits
// nothing.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/agentstation/utc"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/logging"
	"github.com/agentstation/fundingscape/pkg/metrics"
	"github.com/agentstation/fundingscape/pkg/normalize"
	"github.com/agentstation/fundingscape/pkg/reconciler"
	"github.com/agentstation/fundingscape/pkg/sources"
	"github.com/agentstation/fundingscape/pkg/store"
)

// Pipeline wires connectors, the cache, the reconciler and the store.
type Pipeline struct {
	cfg        *config.Config
	cache      Cache
	store      store.Store
	connectors *sources.Sources
	normalizer *normalize.Normalizer
	reconciler reconciler.Reconciler
	metrics    *metrics.Metrics
	now        func() time.Time
	newRunID   func() string
}

// New validates cfg and returns a Pipeline.
func New(cfg *config.Config, c Cache, st store.Store, connectors *sources.Sources, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.NewConfigError("pipeline", "configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil || st == nil || connectors == nil {
		return nil, errors.NewConfigError("pipeline", "cache, store and connectors are required", nil)
	}

	p := &Pipeline{
		cfg:        cfg,
		cache:      c,
		store:      st,
		connectors: connectors,
		now:        time.Now,
		newRunID:   newRunID,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New(normalize.WithClock(p.now))
	}
	if p.reconciler == nil {
		r, err := reconciler.New(
			reconciler.WithPriority(cfg.Priority...),
			reconciler.WithSimilarityThreshold(cfg.Dedup.SimilarityThreshold),
			reconciler.WithAmountTolerance(cfg.Dedup.AmountTolerance),
			reconciler.WithDateTolerance(cfg.Dedup.DateTolerance),
			reconciler.WithClock(p.now),
		)
		if err != nil {
			return nil, err
		}
		p.reconciler = r
	}
	return p, nil
}

// Run performs one update. The returned report is complete for dry runs
// too; only a configuration, store or cancellation error returns an error.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	runID := p.newRunID()
	ctx = logging.WithRun(ctx, runID)
	logger := logging.FromContext(ctx)
	start := p.now()

	selected, err := p.selectSources(opts.Sources)
	if err != nil {
		return nil, err
	}
	concurrency := p.cfg.Pipeline.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}

	logger.Info().
		Int("sources", len(selected)).
		Int("concurrency", concurrency).
		Bool("dry_run", opts.DryRun).
		Msg("Starting update")

	results := make([]*sources.RunResult, len(selected))
	batches := make([]*normalize.Batch, len(selected))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, conn := range selected {
		settings := SettingsFor(p.cfg, conn.ID())
		if opts.MaxRecords > 0 {
			settings.MaxRecords = opts.MaxRecords
		}
		g.Go(func() error {
			results[i], batches[i] = p.RunSource(ctx, conn, settings)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update canceled before staging: %w", err)
	}

	staged := normalize.NewBatch()
	for _, b := range batches {
		staged.Merge(b)
	}

	snap, err := p.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	batch, result, err := p.reconciler.Plan(ctx, snap, reconciler.InputFromBatch(runID, staged))
	if err != nil {
		return nil, err
	}
	batch.SourceRuns = p.sourceRuns(runID, snap, results)

	report := &Report{
		RunID:     runID,
		DryRun:    opts.DryRun,
		Sources:   results,
		Reconcile: result,
		StartTime: start,
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update canceled before commit: %w", err)
	}
	if !opts.DryRun {
		if err := p.store.Commit(ctx, batch); err != nil {
			return nil, err
		}
		report.Committed = true
		p.observe(batch, results)
	}
	report.Duration = p.now().Sub(start)
	p.metrics.ObserveRun(report.Duration)

	logger.Info().
		Int("entries", len(batch.Changes)).
		Int("clusters", len(batch.Clusters)).
		Bool("committed", report.Committed).
		Dur("duration", report.Duration).
		Msg("Update finished")
	return report, nil
}

// selectSources resolves names to connectors, in priority order. Explicit
// names must be known and registered; with none, every enabled source that
// has a connector runs.
func (p *Pipeline) selectSources(names []string) ([]sources.Connector, error) {
	var ids []sources.ID
	if len(names) == 0 {
		for _, id := range p.cfg.EnabledSources() {
			if _, ok := p.connectors.Get(id); ok {
				ids = append(ids, id)
			}
		}
	} else {
		for _, name := range names {
			id := sources.ID(name)
			if !id.IsValid() {
				return nil, errors.NewConfigError("pipeline", fmt.Sprintf("unknown source %q", name), nil)
			}
			if _, ok := p.connectors.Get(id); !ok {
				return nil, errors.NewConfigError("pipeline", fmt.Sprintf("source %q has no connector", name), nil)
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, errors.NewConfigError("pipeline", "no sources to run", nil)
	}

	conns := make([]sources.Connector, 0, len(ids))
	for _, id := range ids {
		conn, _ := p.connectors.Get(id)
		conns = append(conns, conn)
	}
	return conns, nil
}

// sourceRuns builds this run's bookkeeping. LastSuccess only advances on
// ok; validators fall back to the previous record when the run fetched
// nothing.
func (p *Pipeline) sourceRuns(runID string, snap *store.Snapshot, results []*sources.RunResult) []grants.SourceRunRecord {
	now := utc.New(p.now())
	out := make([]grants.SourceRunRecord, 0, len(results))
	for _, res := range results {
		prev := snap.SourceRuns[res.Source.String()]
		rec := grants.SourceRunRecord{
			Source:       res.Source.String(),
			RunID:        runID,
			LastFetch:    &now,
			LastSuccess:  prev.LastSuccess,
			RecordCount:  res.RecordsNormalized,
			ETag:         res.ETag,
			LastModified: res.LastModified,
			Health:       res.Health,
			Message:      res.Message,
		}
		if res.Health == grants.HealthOK {
			rec.LastSuccess = &now
		}
		if rec.ETag == "" && rec.LastModified == "" {
			rec.ETag, rec.LastModified = prev.ETag, prev.LastModified
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b grants.SourceRunRecord) int {
		switch {
		case a.Source < b.Source:
			return -1
		case a.Source > b.Source:
			return 1
		}
		return 0
	})
	return out
}

func (p *Pipeline) observe(batch *store.Batch, results []*sources.RunResult) {
	if p.metrics == nil {
		return
	}
	all := []string{
		string(grants.HealthOK), string(grants.HealthStale),
		string(grants.HealthError), string(grants.HealthNeverFetched),
	}
	for _, res := range results {
		p.metrics.SetHealth(res.Source.String(), string(res.Health), all)
	}
	for i := range batch.Changes {
		p.metrics.ObserveChange(string(batch.Changes[i].Kind))
	}
	if batch.ReplaceClusters {
		p.metrics.SetClusters(len(batch.Clusters))
	}
}

// SourceStatus returns the last run record of every source in ids, with
// never-fetched records for sources that have none.
func SourceStatus(ctx context.Context, st store.Store, ids []sources.ID) ([]grants.SourceRunRecord, error) {
	runs, err := st.SourceRuns(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(runs))
	for _, r := range runs {
		seen[r.Source] = true
	}
	for _, id := range ids {
		if !seen[id.String()] {
			runs = append(runs, grants.SourceRunRecord{Source: id.String(), Health: grants.HealthNeverFetched})
			seen[id.String()] = true
		}
	}
	slices.SortFunc(runs, func(a, b grants.SourceRunRecord) int {
		switch {
		case a.Source < b.Source:
			return -1
		case a.Source > b.Source:
			return 1
		}
		return 0
	})
	return runs, nil
}
