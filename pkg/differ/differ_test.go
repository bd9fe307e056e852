package differ_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/pkg/differ"
	"github.com/agentstation/fundingscape/pkg/grants"
)

func award(id string) grants.GrantAward {
	return grants.GrantAward{
		SourceIdentity: grants.SourceIdentity{Source: "openaire", LocalID: id},
		Title:          "Quantum Sensing Network",
		StartDate:      grants.NewDate(2024, 1, 1),
		EndDate:        grants.NewDate(2026, 12, 31),
		Amount:         grants.NewMoney(500000, "EUR"),
		Status:         grants.GrantActive,
	}
}

func TestGrantTrackedFields(t *testing.T) {
	d := differ.New()
	old := award("1")
	updated := award("1")
	updated.Amount = grants.NewMoney(550000, "EUR")
	updated.Abstract = "not tracked"

	changes := d.Grant(&old, &updated)
	require.Len(t, changes, 1)
	assert.Equal(t, differ.FieldChange{
		Path:     differ.FieldAmount,
		OldValue: "500000",
		NewValue: "550000",
		Type:     differ.ChangeTypeUpdate,
		Source:   "openaire",
	}, changes[0])
}

func TestGrantFieldOrder(t *testing.T) {
	d := differ.New()
	old := award("1")
	updated := award("1")
	updated.Status = grants.GrantCompleted
	updated.Title = "Quantum Sensing Networks"
	updated.Amount = grants.NewMoney(500000, "GBP")
	updated.EndDate = grants.Date{}

	changes := d.Grant(&old, &updated)
	var paths []string
	for _, c := range changes {
		paths = append(paths, c.Path)
	}
	assert.Equal(t, []string{"title", "currency", "end_date", "status"}, paths)
	assert.Equal(t, "", changes[2].NewValue)
}

func TestGrantAmountAppears(t *testing.T) {
	old := award("1")
	old.Amount = nil
	updated := award("1")

	changes := differ.New().Grant(&old, &updated)
	require.Len(t, changes, 2)
	assert.Equal(t, differ.ChangeTypeAdd, changes[0].Type)
	assert.Equal(t, "500000", changes[0].NewValue)
	assert.Equal(t, "EUR", changes[1].NewValue)
}

func TestWithIgnoredFields(t *testing.T) {
	old := award("1")
	updated := award("1")
	updated.Title = "Renamed"
	updated.Status = grants.GrantTerminated

	changes := differ.New(differ.WithIgnoredFields(differ.FieldTitle)).Grant(&old, &updated)
	require.Len(t, changes, 1)
	assert.Equal(t, differ.FieldStatus, changes[0].Path)
}

func TestGrants(t *testing.T) {
	existing := map[grants.SourceIdentity]grants.GrantAward{}
	for _, id := range []string{"1", "2"} {
		g := award(id)
		existing[g.SourceIdentity] = g
	}

	changed := award("2")
	changed.Title = "Quantum Sensing Network II"
	changeset := differ.New().Grants(existing, []grants.GrantAward{award("3"), changed, award("1")})

	require.Len(t, changeset.Added, 1)
	assert.Equal(t, "3", changeset.Added[0].LocalID)
	require.Len(t, changeset.Updated, 1)
	assert.Equal(t, "2", changeset.Updated[0].ID.LocalID)
	assert.True(t, changeset.HasChanges())
}

func TestCalls(t *testing.T) {
	old := grants.Call{
		SourceIdentity: grants.SourceIdentity{Source: "ft_portal", LocalID: "C1"},
		Title:          "Digital technologies",
		Status:         grants.CallOpen,
		Deadline:       grants.NewDate(2025, 12, 1),
		Budget:         grants.NewMoney(1000000, "EUR"),
	}
	updated := old
	updated.Status = grants.CallClosed
	updated.Budget = grants.NewMoney(1500000, "EUR")

	changeset := differ.New().Calls(
		map[grants.SourceIdentity]grants.Call{old.SourceIdentity: old},
		[]grants.Call{updated},
	)
	require.Len(t, changeset.Updated, 1)
	changes := changeset.Updated[0].Changes
	require.Len(t, changes, 2)
	assert.Equal(t, differ.FieldStatus, changes[0].Path)
	assert.Equal(t, "open", changes[0].OldValue)
	assert.Equal(t, "closed", changes[0].NewValue)
	assert.Equal(t, differ.FieldBudget, changes[1].Path)
	assert.Equal(t, "1500000 EUR", changes[1].NewValue)
}

func TestChangesetSummary(t *testing.T) {
	empty := differ.NewChangeset(nil, nil)
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, "No changes detected", empty.String())

	old := award("1")
	updated := award("1")
	updated.Title = "Renamed"
	updated.Status = grants.GrantCompleted
	d := differ.New()
	g := d.Grants(map[grants.SourceIdentity]grants.GrantAward{old.SourceIdentity: old}, []grants.GrantAward{updated, award("2")})

	c := differ.NewChangeset(g, nil)
	assert.Equal(t, 1, c.Summary.GrantsAdded)
	assert.Equal(t, 1, c.Summary.GrantsUpdated)
	assert.Equal(t, 2, c.Summary.FieldChanges)
	assert.Equal(t, "Changeset: Grants: 1 added, 1 updated (Total: 2 changes)", c.String())

	var buf bytes.Buffer
	c.Fprint(&buf)
	assert.Contains(t, buf.String(), "openaire:2 (Quantum Sensing Network)")
	assert.Contains(t, buf.String(), "title: Quantum Sensing Network → Renamed")
}
