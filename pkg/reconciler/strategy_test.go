package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/fundingscape/pkg/grants"
)

func candidate(title string) *Candidate {
	return NewCandidate(&grants.GrantAward{Title: title})
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity(candidate("Quantum Sensing"), candidate("quantum-sensing")), 1e-9)
	assert.InDelta(t, 40.0/41.0, Similarity(candidate("Quantum Sensing Network"), candidate("Quantum Sensing Networks")), 1e-9)
	assert.Less(t, Similarity(candidate("Quantum Sensing Network"), candidate("Soil microbiome dynamics")), 0.2)
	assert.Equal(t, 0.0, Similarity(candidate("!!!"), candidate("!!!")))
	assert.Equal(t, 0.0, Similarity(candidate("a"), candidate("b")))

	// repeated bigrams count once per occurrence
	assert.InDelta(t, 2*2.0/(3+2), Similarity(candidate("aaaa"), candidate("aaa")), 1e-9)
}

func TestAmountsAgree(t *testing.T) {
	eur := func(units int64) *grants.Money { return grants.NewMoney(units, "EUR") }
	assert.True(t, amountsAgree(eur(500000), eur(525000), 0.05))
	assert.False(t, amountsAgree(eur(500000), eur(530000), 0.05))
	assert.True(t, amountsAgree(nil, eur(530000), 0.05))
	assert.True(t, amountsAgree(eur(0), eur(530000), 0.05))
	assert.True(t, amountsAgree(eur(500000), grants.NewMoney(900000, "USD"), 0.05), "currencies are never compared")
}

func TestDatesAgree(t *testing.T) {
	g := func(start, end grants.Date) *grants.GrantAward {
		return &grants.GrantAward{StartDate: start, EndDate: end}
	}
	base := g(grants.NewDate(2024, 1, 1), grants.NewDate(2024, 12, 31))

	assert.True(t, datesAgree(base, g(grants.NewDate(2024, 6, 1), grants.NewDate(2025, 6, 1)), 90), "overlap")
	assert.True(t, datesAgree(base, g(grants.NewDate(2025, 3, 31), grants.NewDate(2026, 1, 1)), 90), "90 day gap")
	assert.False(t, datesAgree(base, g(grants.NewDate(2025, 4, 1), grants.NewDate(2026, 1, 1)), 90), "91 day gap")
	assert.False(t, datesAgree(g(grants.NewDate(2025, 4, 1), grants.NewDate(2026, 1, 1)), base, 90), "symmetric")
	assert.True(t, datesAgree(base, g(grants.Date{}, grants.Date{}), 0), "unknown range")
	assert.True(t, datesAgree(base, g(grants.NewDate(2025, 2, 1), grants.Date{}), 90), "open end uses start")
	assert.False(t, datesAgree(base, g(grants.Date{}, grants.NewDate(2023, 1, 1)), 90), "open start uses end")
}

func TestBlockingKeys(t *testing.T) {
	c := NewCandidate(&grants.GrantAward{
		Title:     "Quantum Sensing: Network",
		ProjectID: "corda__h2020::101017733",
		PI:        grants.Investigator{Country: "NL"},
		StartDate: grants.NewDate(2021, 3, 1),
	})
	assert.Equal(t, []string{"p:101017733", "t:quantum sensing network|NL|2021"}, c.BlockingKeys())
	assert.Empty(t, NewCandidate(&grants.GrantAward{Title: "..."}).BlockingKeys())
}

func TestRuleMatcher(t *testing.T) {
	m := NewRuleMatcher(0.85, 0.05, 90*24*time.Hour)
	assert.Equal(t, MatcherTypeRules, m.Type())
	assert.Contains(t, m.Description(), "90 days")

	a := NewCandidate(&grants.GrantAward{Title: "Quantum Sensing Network", Amount: grants.NewMoney(500000, "EUR")})
	b := NewCandidate(&grants.GrantAward{Title: "Quantum sensing network", Amount: grants.NewMoney(700000, "EUR")})
	assert.False(t, m.Match(a, b))
	b.Grant.Amount = grants.NewMoney(510000, "EUR")
	assert.True(t, m.Match(a, b))
	assert.True(t, m.Match(b, a))
}

func TestUnionFind(t *testing.T) {
	u := newUnionFind()
	a, b, c, d := grants.SourceIdentity{Source: "a"}, grants.SourceIdentity{Source: "b"}, grants.SourceIdentity{Source: "c"}, grants.SourceIdentity{Source: "d"}
	assert.True(t, u.union(a, b))
	assert.True(t, u.union(c, b))
	assert.False(t, u.union(a, c))
	u.add(d)
	assert.Equal(t, u.find(a), u.find(c))
	assert.NotEqual(t, u.find(a), u.find(d))
	assert.Len(t, u.groups(), 2)
}

func TestClusterID(t *testing.T) {
	x := grants.SourceIdentity{Source: "openaire", LocalID: "1"}
	y := grants.SourceIdentity{Source: "cordis_bulk", LocalID: "9"}
	assert.Equal(t, ClusterID([]grants.SourceIdentity{x, y}), ClusterID([]grants.SourceIdentity{y, x}))
	assert.Equal(t, ClusterID([]grants.SourceIdentity{y}), ClusterID([]grants.SourceIdentity{x, y}))
	assert.Empty(t, ClusterID(nil))
}
