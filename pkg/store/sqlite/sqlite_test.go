package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/store"
	"github.com/agentstation/fundingscape/pkg/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "fundingscape.db"))
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTemp(t) })
}

func TestInMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), MemoryPath)
		require.NoError(t, err)
		return s
	})
}

func TestPragmas(t *testing.T) {
	s := openTemp(t)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	var mode string
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var version int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)

	var indexes int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = 'grant_awards' AND sql LIKE '%project_id%'").Scan(&indexes))
	assert.Zero(t, indexes, "no index without a query that uses it")
}

func TestChangeLogIsAppendOnly(t *testing.T) {
	s := openTemp(t)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, &store.Batch{
		RunID: "run-1",
		Changes: []grants.ChangeLogEntry{
			{EntityType: grants.EntityGrantAward, EntityID: "A:P1", Kind: grants.ChangeNew},
		},
	}))

	_, err := s.db.ExecContext(ctx, "UPDATE change_log SET kind = 'updated'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = s.db.ExecContext(ctx, "DELETE FROM change_log")
	require.Error(t, err)

	entries, err := s.Changes(ctx, store.ChangeQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, grants.ChangeNew, entries[0].Kind)
}

func TestFailedCommitRollsBack(t *testing.T) {
	s := openTemp(t)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	// the instrument's funder does not exist, so the foreign key fails
	err := s.Commit(ctx, &store.Batch{
		RunID: "run-1",
		Changes: []grants.ChangeLogEntry{
			{EntityType: grants.EntityInstrument, EntityID: "i-1", Kind: grants.ChangeNew},
		},
		Grants:      []grants.GrantAward{storetest.Award("A", "P1")},
		Instruments: []grants.FundingInstrument{{ID: "i-1", FunderID: "missing", Name: "Orphan"}},
	})
	require.Error(t, err)

	entries, err := s.Changes(ctx, store.ChangeQuery{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Grants)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "fundingscape.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, &store.Batch{
		RunID:  "run-1",
		Grants: []grants.GrantAward{storetest.Award("A", "P1")},
		Changes: []grants.ChangeLogEntry{
			{EntityType: grants.EntityGrantAward, EntityID: "A:P1", Kind: grants.ChangeNew},
		},
	}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, storetest.Award("A", "P1"), snap.Grants[grants.SourceIdentity{Source: "A", LocalID: "P1"}])

	require.NoError(t, s.Commit(ctx, &store.Batch{
		RunID: "run-2",
		Changes: []grants.ChangeLogEntry{
			{EntityType: grants.EntityGrantAward, EntityID: "A:P1", Kind: grants.ChangeUpdated, Field: "title"},
		},
	}))
	entries, err := s.Changes(ctx, store.ChangeQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[1].Seq)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)
}
