// Package reconciler turns a run's staged records and the stored state into
// one store batch: change-log entries for every tracked difference, upserts
// for every changed entity, and the recomputed duplicate clusters.
//
// Planning is pure. The same snapshot and input always produce the same
// batch, regardless of input order, and an input that matches the snapshot
// produces no entries and no cluster change.
package reconciler

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/agentstation/utc"

	"github.com/agentstation/fundingscape/pkg/authority"
	"github.com/agentstation/fundingscape/pkg/differ"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/logging"
	"github.com/agentstation/fundingscape/pkg/normalize"
	"github.com/agentstation/fundingscape/pkg/store"
)

// Reconciler plans the write of one pipeline run.
type Reconciler interface {
	// Plan compares in against snap and returns the batch to commit.
	Plan(ctx context.Context, snap *store.Snapshot, in *Input) (*store.Batch, *Result, error)
}

// Input is everything one run staged, deduplicated by identity.
type Input struct {
	RunID       string
	Funders     []grants.Funder
	Instruments []grants.FundingInstrument
	Grants      []grants.GrantAward
	Calls       []grants.Call
}

// InputFromBatch wraps a normalized batch.
func InputFromBatch(runID string, b *normalize.Batch) *Input {
	return &Input{
		RunID:       runID,
		Funders:     b.Funders(),
		Instruments: b.Instruments(),
		Grants:      b.Grants(),
		Calls:       b.Calls(),
	}
}

// reconciler is the default implementation of Reconciler.
type reconciler struct {
	ranking *authority.Ranking
	differ  differ.Differ
	matcher Matcher
	options *options
}

// New creates a new Reconciler with options.
func New(opts ...Option) (Reconciler, error) {
	options, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &reconciler{
		ranking: options.ranking,
		differ:  options.differ,
		matcher: options.matcher,
		options: options,
	}, nil
}

// Plan implements Reconciler.
func (r *reconciler) Plan(ctx context.Context, snap *store.Snapshot, in *Input) (*store.Batch, *Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if snap == nil {
		snap = store.NewSnapshot()
	}
	if in == nil {
		in = &Input{}
	}
	logger := logging.FromContext(ctx)
	result := NewResult(in.RunID, r.options.now())
	result.Metadata.Matcher = r.matcher.Type()
	stats := &result.Metadata.Stats
	stats.GrantsProcessed = len(in.Grants)
	stats.CallsProcessed = len(in.Calls)

	batch := &store.Batch{RunID: in.RunID}

	// Funders and instruments: upsert on change, never logged
	for _, f := range in.Funders {
		old, ok := snap.Funders[f.ID]
		merged := overlayFunder(old, f)
		if !ok || merged != old {
			batch.Funders = append(batch.Funders, merged)
		}
	}
	for _, i := range in.Instruments {
		old, ok := snap.Instruments[i.ID]
		merged := overlayInstrument(old, i)
		if !ok || !sameJSON(merged, old) {
			batch.Instruments = append(batch.Instruments, merged)
		}
	}

	// Awards and calls
	grantChanges := r.differ.Grants(snap.Grants, in.Grants)
	callChanges := r.differ.Calls(snap.Calls, in.Calls)
	entries := append(grantEntries(grantChanges), callEntries(callChanges)...)

	all := maps.Clone(snap.Grants)
	if all == nil {
		all = make(map[grants.SourceIdentity]grants.GrantAward, len(in.Grants))
	}
	for _, g := range in.Grants {
		if old, ok := snap.Grants[g.SourceIdentity]; !ok || !sameJSON(old, g) {
			batch.Grants = append(batch.Grants, g)
		}
		all[g.SourceIdentity] = g
	}
	for _, c := range in.Calls {
		if old, ok := snap.Calls[c.SourceIdentity]; !ok || !sameJSON(old, c) {
			batch.Calls = append(batch.Calls, c)
		}
	}

	// Clusters over the full award set
	clustering := r.cluster(all, snap.Clusters)
	entries = append(entries, clustering.merged...)
	if clustering.changed {
		batch.ReplaceClusters = true
		batch.Clusters = clustering.clusters
	}

	detected := utc.New(r.options.now())
	for i := range entries {
		entries[i].RunID = in.RunID
		entries[i].DetectedAt = detected
		result.Entries[entries[i].Kind]++
	}
	sortEntries(entries)
	batch.Changes = entries

	sortUpserts(batch)
	stats.FundersUpserted = len(batch.Funders)
	stats.InstrumentsUpserted = len(batch.Instruments)
	stats.GrantsUpserted = len(batch.Grants)
	stats.CallsUpserted = len(batch.Calls)
	stats.CandidatePairs = clustering.pairs
	stats.Matches = clustering.matches
	stats.Clusters = len(clustering.clusters)
	stats.Merges = len(clustering.merged)
	stats.ClustersChanged = clustering.changed

	result.Changeset = differ.NewChangeset(grantChanges, callChanges)
	result.Finalize(r.options.now())

	logger.Info().
		Int("entries", len(entries)).
		Int("grants_upserted", stats.GrantsUpserted).
		Int("calls_upserted", stats.CallsUpserted).
		Int("clusters", stats.Clusters).
		Int("merges", stats.Merges).
		Bool("clusters_changed", stats.ClustersChanged).
		Msg("Planned reconciliation")

	return batch, result, nil
}

func sortUpserts(b *store.Batch) {
	slices.SortFunc(b.Funders, func(x, y grants.Funder) int { return strings.Compare(x.ID, y.ID) })
	slices.SortFunc(b.Instruments, func(x, y grants.FundingInstrument) int { return strings.Compare(x.ID, y.ID) })
	slices.SortFunc(b.Grants, func(x, y grants.GrantAward) int { return x.SourceIdentity.Compare(y.SourceIdentity) })
	slices.SortFunc(b.Calls, func(x, y grants.Call) int { return x.SourceIdentity.Compare(y.SourceIdentity) })
}
