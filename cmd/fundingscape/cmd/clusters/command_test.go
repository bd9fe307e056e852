package clusters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/pkg/grants"
)

func TestFilter(t *testing.T) {
	single := grants.CanonicalGrant{ID: "a", Primary: grants.SourceIdentity{Source: "gepris", LocalID: "gepris_1"}}
	pair := grants.CanonicalGrant{
		ID:      "b",
		Primary: grants.SourceIdentity{Source: "cordis_bulk", LocalID: "horizon_1"},
		Aliases: []grants.SourceIdentity{{Source: "openaire_bulk", LocalID: "oaire_EC_1"}},
	}
	all := []grants.CanonicalGrant{single, pair}

	assert.Equal(t, all, Filter(all, 1))
	assert.Equal(t, []grants.CanonicalGrant{pair}, Filter(all, 2))
	assert.Empty(t, Filter(all, 3))
	assert.NotNil(t, Filter[grants.CanonicalGrant](nil, 2))
}

func TestFilterCoalesced(t *testing.T) {
	all := []grants.CoalescedGrant{
		{CanonicalGrant: grants.CanonicalGrant{ID: "a"}},
		{CanonicalGrant: grants.CanonicalGrant{ID: "b", Aliases: []grants.SourceIdentity{{Source: "gepris", LocalID: "gepris_2"}}}},
	}
	got := Filter(all, 2)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}
