// Package storetest holds the behavior every store.Store implementation
// must share, run against a fresh store per test.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/store"
)

// Factory opens an empty store.
type Factory func(t *testing.T) store.Store

// Run runs the shared store tests.
func Run(t *testing.T, open Factory) {
	t.Run("EmptySnapshot", func(t *testing.T) { testEmptySnapshot(t, open(t)) })
	t.Run("CommitAndSnapshot", func(t *testing.T) { testCommitAndSnapshot(t, open(t)) })
	t.Run("UpsertByIdentity", func(t *testing.T) { testUpsertByIdentity(t, open(t)) })
	t.Run("ChangeLogAppendOnly", func(t *testing.T) { testChangeLog(t, open(t)) })
	t.Run("ClustersReplace", func(t *testing.T) { testClusters(t, open(t)) })
	t.Run("SourceRuns", func(t *testing.T) { testSourceRuns(t, open(t)) })
	t.Run("CanceledCommit", func(t *testing.T) { testCanceledCommit(t, open(t)) })
}

var detected = utc.New(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

// Award returns a fully populated grant for source:id.
func Award(source, id string) grants.GrantAward {
	return grants.GrantAward{
		SourceIdentity: grants.SourceIdentity{Source: source, LocalID: id},
		FunderID:       "f-1",
		InstrumentID:   "i-1",
		ProjectID:      "101017733",
		Acronym:        "QSN",
		Title:          "Quantum Sensing Network",
		Abstract:       "Entangled sensors.",
		PI:             grants.Investigator{Name: "Ada Lovelace", Institution: "UCL", Country: "GB"},
		StartDate:      grants.NewDate(2024, 1, 1),
		EndDate:        grants.NewDate(2026, 12, 31),
		Amount:         &grants.Money{Minor: 50000000, Currency: "EUR", OriginalAmount: "500000", OriginalCurrency: "EUR"},
		Status:         grants.GrantActive,
		Partners:       []string{"TU Delft", "ETH Zurich"},
		Keywords:       []string{"quantum"},
	}
}

// Call returns a fully populated call for source:id.
func Call(source, id string) grants.Call {
	return grants.Call{
		SourceIdentity:     grants.SourceIdentity{Source: source, LocalID: id},
		InstrumentID:       "i-1",
		FunderID:           "f-1",
		CallIdentifier:     id,
		Title:              "Digital and emerging technologies",
		Description:        "Quantum technologies.",
		URL:                "https://example.org/call",
		OpeningDate:        grants.NewDate(2025, 9, 1),
		Deadline:           grants.NewDate(2025, 12, 1),
		Status:             grants.CallForthcoming,
		Budget:             &grants.Money{Minor: 1250000000, Currency: "EUR"},
		Keywords:           []string{"quantum", "photonics"},
		FrameworkProgramme: "HORIZON",
	}
}

func fullBatch() *store.Batch {
	return &store.Batch{
		RunID: "run-1",
		Changes: []grants.ChangeLogEntry{
			{EntityType: grants.EntityGrantAward, EntityID: "A:P1", Kind: grants.ChangeNew, DetectedAt: detected},
			{EntityType: grants.EntityCall, EntityID: "ft_portal:C1", Kind: grants.ChangeNew, DetectedAt: detected},
		},
		Funders: []grants.Funder{{ID: "f-1", Name: "European Commission", ShortName: "EC", Country: "", Category: grants.FunderSupranational}},
		Instruments: []grants.FundingInstrument{{
			ID: "i-1", FunderID: "f-1", Name: "Horizon Europe",
			MinAmount: grants.NewMoney(100000, "EUR"), MaxAmount: grants.NewMoney(2500000, "EUR"),
			Recurrence: grants.RecurrenceAnnual, DeadlinePolicy: grants.DeadlineFixed,
		}},
		Grants:          []grants.GrantAward{Award("A", "P1")},
		Calls:           []grants.Call{Call("ft_portal", "C1")},
		ReplaceClusters: true,
		Clusters:        []grants.CanonicalGrant{{ID: "c-1", Primary: grants.SourceIdentity{Source: "A", LocalID: "P1"}}},
	}
}

func testEmptySnapshot(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Grants)
	assert.Empty(t, snap.Calls)
	assert.Empty(t, snap.Clusters)

	latest, err := s.LatestChanges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func testCommitAndSnapshot(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	b := fullBatch()
	require.NoError(t, s.Commit(ctx, b))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)

	id := grants.SourceIdentity{Source: "A", LocalID: "P1"}
	require.Contains(t, snap.Grants, id)
	assert.Equal(t, b.Grants[0], snap.Grants[id])

	cid := grants.SourceIdentity{Source: "ft_portal", LocalID: "C1"}
	require.Contains(t, snap.Calls, cid)
	assert.Equal(t, b.Calls[0], snap.Calls[cid])

	assert.Equal(t, b.Funders[0], snap.Funders["f-1"])
	assert.Equal(t, b.Instruments[0], snap.Instruments["i-1"])
	assert.Equal(t, b.Clusters, snap.Clusters)
}

func testUpsertByIdentity(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, fullBatch()))

	updated := Award("A", "P1")
	updated.Amount = &grants.Money{Minor: 55000000, Currency: "EUR", OriginalAmount: "550000"}
	updated.Keywords = nil
	require.NoError(t, s.Commit(ctx, &store.Batch{RunID: "run-2", Grants: []grants.GrantAward{updated}}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Grants, 1)
	assert.Equal(t, updated, snap.Grants[updated.SourceIdentity])
	assert.Len(t, snap.Clusters, 1, "clusters are kept unless replaced")
}

func testChangeLog(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, fullBatch()))
	require.NoError(t, s.Commit(ctx, &store.Batch{
		RunID: "run-2",
		Changes: []grants.ChangeLogEntry{{
			EntityType: grants.EntityGrantAward, EntityID: "A:P1", Kind: grants.ChangeUpdated,
			Field: "amount", OldValue: "500000", NewValue: "550000", DetectedAt: detected,
		}},
	}))

	all, err := s.Changes(ctx, store.ChangeQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, e := range all {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.Equal(t, "run-1", all[0].RunID)
	assert.True(t, all[2].DetectedAt.Time.Equal(detected.Time))

	latest, err := s.LatestChanges(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "amount", latest[0].Field)
	assert.Equal(t, "500000", latest[0].OldValue)
	assert.Equal(t, "550000", latest[0].NewValue)

	news, err := s.Changes(ctx, store.ChangeQuery{Kinds: []grants.ChangeKind{grants.ChangeNew}})
	require.NoError(t, err)
	assert.Len(t, news, 2)

	calls, err := s.Changes(ctx, store.ChangeQuery{EntityType: grants.EntityCall})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "ft_portal:C1", calls[0].EntityID)

	limited, err := s.Changes(ctx, store.ChangeQuery{AfterSeq: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(2), limited[0].Seq)
}

func testClusters(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, fullBatch()))

	merged := []grants.CanonicalGrant{
		{
			ID:      "c-2",
			Primary: grants.SourceIdentity{Source: "A", LocalID: "P1"},
			Aliases: []grants.SourceIdentity{{Source: "B", LocalID: "X9"}},
		},
	}
	require.NoError(t, s.Commit(ctx, &store.Batch{RunID: "run-2", ReplaceClusters: true, Clusters: merged}))

	got, err := s.Clusters(ctx)
	require.NoError(t, err)
	assert.Equal(t, merged, got)
}

func testSourceRuns(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	fetched := utc.New(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.Commit(ctx, &store.Batch{RunID: "run-1", SourceRuns: []grants.SourceRunRecord{
		{Source: "openaire", RunID: "run-1", LastFetch: &fetched, LastSuccess: &fetched, RecordCount: 10, ETag: `"v1"`, Health: grants.HealthOK},
		{Source: "gepris", RunID: "run-1", LastFetch: &fetched, Health: grants.HealthError, Message: "all fetches failed"},
	}}))
	require.NoError(t, s.Commit(ctx, &store.Batch{RunID: "run-2", SourceRuns: []grants.SourceRunRecord{
		{Source: "openaire", RunID: "run-2", LastFetch: &fetched, LastSuccess: &fetched, RecordCount: 12, Health: grants.HealthStale},
	}}))

	runs, err := s.SourceRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "gepris", runs[0].Source)
	assert.Equal(t, grants.HealthError, runs[0].Health)
	assert.Nil(t, runs[0].LastSuccess)
	assert.Equal(t, "openaire", runs[1].Source)
	assert.Equal(t, 12, runs[1].RecordCount)
	assert.Equal(t, grants.HealthStale, runs[1].Health)
	require.NotNil(t, runs[1].LastFetch)
	assert.True(t, runs[1].LastFetch.Time.Equal(fetched.Time))
}

func testCanceledCommit(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, s.Commit(ctx, fullBatch()))

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Grants)
	all, err := s.Changes(context.Background(), store.ChangeQuery{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
