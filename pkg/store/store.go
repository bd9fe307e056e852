// Package store defines the persisted canonical state and the single write
// path into it.
//
// A Store is written once per pipeline run through Commit, which applies a
// Batch atomically: change-log entries first, then entity upserts, then the
// cluster replacement, then source run bookkeeping. Readers see either the
// state before a commit or the state after it, never a mix.
package store

import (
	"context"
	"slices"

	"github.com/agentstation/fundingscape/pkg/grants"
)

// Store is the canonical entity store.
type Store interface {
	// Snapshot returns the current state. The returned value is owned by
	// the caller.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Commit applies b atomically.
	Commit(ctx context.Context, b *Batch) error

	// Changes returns change-log entries matching q, ordered by sequence.
	Changes(ctx context.Context, q ChangeQuery) ([]grants.ChangeLogEntry, error)

	// LatestChanges returns the entries of the most recent run that
	// recorded any.
	LatestChanges(ctx context.Context) ([]grants.ChangeLogEntry, error)

	// SourceRuns returns the last run record of every source, by source.
	SourceRuns(ctx context.Context) ([]grants.SourceRunRecord, error)

	// Clusters returns the canonical grants, by id.
	Clusters(ctx context.Context) ([]grants.CanonicalGrant, error)

	Close() error
}

// Snapshot is the full current state the reconciler reads.
type Snapshot struct {
	Funders     map[string]grants.Funder
	Instruments map[string]grants.FundingInstrument
	Grants      map[grants.SourceIdentity]grants.GrantAward
	Calls       map[grants.SourceIdentity]grants.Call
	Clusters    []grants.CanonicalGrant // sorted by id
	SourceRuns  map[string]grants.SourceRunRecord
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Funders:     make(map[string]grants.Funder),
		Instruments: make(map[string]grants.FundingInstrument),
		Grants:      make(map[grants.SourceIdentity]grants.GrantAward),
		Calls:       make(map[grants.SourceIdentity]grants.Call),
		SourceRuns:  make(map[string]grants.SourceRunRecord),
	}
}

// ClusterOf returns the id of the cluster containing id, if any.
func (s *Snapshot) ClusterOf(id grants.SourceIdentity) (string, bool) {
	for i := range s.Clusters {
		if s.Clusters[i].Contains(id) {
			return s.Clusters[i].ID, true
		}
	}
	return "", false
}

// Batch is everything one run writes.
type Batch struct {
	RunID       string
	Changes     []grants.ChangeLogEntry
	Funders     []grants.Funder
	Instruments []grants.FundingInstrument
	Grants      []grants.GrantAward
	Calls       []grants.Call

	// Clusters replaces the stored clusters when ReplaceClusters is set.
	ReplaceClusters bool
	Clusters        []grants.CanonicalGrant

	SourceRuns []grants.SourceRunRecord
}

// IsEmpty reports whether committing b would change nothing.
func (b *Batch) IsEmpty() bool {
	return b == nil || (len(b.Changes) == 0 &&
		len(b.Funders) == 0 &&
		len(b.Instruments) == 0 &&
		len(b.Grants) == 0 &&
		len(b.Calls) == 0 &&
		!b.ReplaceClusters &&
		len(b.SourceRuns) == 0)
}

// ChangeQuery filters the change log. Zero fields match everything.
type ChangeQuery struct {
	RunID      string
	Kinds      []grants.ChangeKind
	EntityType grants.EntityType
	EntityID   string
	AfterSeq   int64
	Limit      int
}

// Match reports whether e satisfies q, ignoring Limit.
func (q *ChangeQuery) Match(e *grants.ChangeLogEntry) bool {
	switch {
	case q.RunID != "" && e.RunID != q.RunID:
		return false
	case len(q.Kinds) > 0 && !slices.Contains(q.Kinds, e.Kind):
		return false
	case q.EntityType != "" && e.EntityType != q.EntityType:
		return false
	case q.EntityID != "" && e.EntityID != q.EntityID:
		return false
	case e.Seq <= q.AfterSeq:
		return false
	}
	return true
}
