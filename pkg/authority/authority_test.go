package authority

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/fundingscape/pkg/grants"
)

func id(source, local string) grants.SourceIdentity {
	return grants.SourceIdentity{Source: source, LocalID: local}
}

func TestRank(t *testing.T) {
	r := New([]string{"cordis_bulk", "openaire", "cordis_bulk", ""})

	assert.Equal(t, 0, r.Rank("cordis_bulk"))
	assert.Equal(t, 1, r.Rank("openaire"))
	assert.Equal(t, 2, r.Rank("gepris"), "unlisted sources rank last")
	assert.Equal(t, r.Rank("gepris"), r.Rank("unknown"))
}

func TestPrimary(t *testing.T) {
	r := New([]string{"cordis_bulk", "openaire"})

	tests := []struct {
		name    string
		members []grants.SourceIdentity
		want    grants.SourceIdentity
	}{
		{"empty", nil, grants.SourceIdentity{}},
		{"single", []grants.SourceIdentity{id("gepris", "1")}, id("gepris", "1")},
		{
			"highest priority wins",
			[]grants.SourceIdentity{id("openaire", "a"), id("cordis_bulk", "z"), id("gepris", "0")},
			id("cordis_bulk", "z"),
		},
		{
			"unlisted ties break by source name",
			[]grants.SourceIdentity{id("zeta", "1"), id("alpha", "9")},
			id("alpha", "9"),
		},
		{
			"same source ties break by local id",
			[]grants.SourceIdentity{id("openaire", "b"), id("openaire", "a")},
			id("openaire", "a"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Primary(tt.members))
		})
	}
}

func TestSortIsOrderIndependent(t *testing.T) {
	r := Default()
	a := []grants.SourceIdentity{id("gepris", "1"), id("manual", "x"), id("openaire", "2"), id("cordis_bulk", "3")}
	b := []grants.SourceIdentity{id("cordis_bulk", "3"), id("openaire", "2"), id("gepris", "1"), id("manual", "x")}
	r.Sort(a)
	r.Sort(b)
	assert.Equal(t, a, b)
	assert.Equal(t, id("manual", "x"), a[0])
	assert.Equal(t, id("gepris", "1"), a[3])
}
