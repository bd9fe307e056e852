package reconciler

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/agentstation/fundingscape/pkg/authority"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/store"
)

// unionFind is a disjoint-set forest over source identities.
type unionFind struct {
	parent map[grants.SourceIdentity]grants.SourceIdentity
	rank   map[grants.SourceIdentity]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[grants.SourceIdentity]grants.SourceIdentity),
		rank:   make(map[grants.SourceIdentity]int),
	}
}

func (u *unionFind) add(id grants.SourceIdentity) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
}

func (u *unionFind) find(id grants.SourceIdentity) grants.SourceIdentity {
	u.add(id)
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for id != root {
		next := u.parent[id]
		u.parent[id] = root
		id = next
	}
	return root
}

// union reports whether a and b were in different sets.
func (u *unionFind) union(a, b grants.SourceIdentity) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
	return true
}

func (u *unionFind) groups() [][]grants.SourceIdentity {
	byRoot := make(map[grants.SourceIdentity][]grants.SourceIdentity)
	for id := range u.parent {
		root := u.find(id)
		byRoot[root] = append(byRoot[root], id)
	}
	out := make([][]grants.SourceIdentity, 0, len(byRoot))
	for _, members := range byRoot {
		out = append(out, members)
	}
	return out
}

// ClusterID is the name-based UUID of the lexicographically smallest member.
func ClusterID(members []grants.SourceIdentity) string {
	if len(members) == 0 {
		return ""
	}
	smallest := members[0].String()
	for _, m := range members[1:] {
		if s := m.String(); s < smallest {
			smallest = s
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(smallest)).String()
}

// newCluster builds the canonical grant for one group of members.
func newCluster(members []grants.SourceIdentity, ranking *authority.Ranking) grants.CanonicalGrant {
	primary := ranking.Primary(members)
	var aliases []grants.SourceIdentity
	for _, m := range members {
		if m != primary {
			aliases = append(aliases, m)
		}
	}
	slices.SortFunc(aliases, grants.SourceIdentity.Compare)
	return grants.CanonicalGrant{ID: ClusterID(members), Primary: primary, Aliases: aliases}
}

// clusterOutcome is the clustering of the full award set.
type clusterOutcome struct {
	clusters []grants.CanonicalGrant // sorted by id
	merged   []grants.ChangeLogEntry
	changed  bool
	pairs    int // candidate pairs compared
	matches  int
}

// cluster groups all awards, seeded with the previous clusters so no
// previous cluster is ever split.
func (r *reconciler) cluster(all map[grants.SourceIdentity]grants.GrantAward, previous []grants.CanonicalGrant) clusterOutcome {
	var out clusterOutcome
	uf := newUnionFind()

	ids := make([]grants.SourceIdentity, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, grants.SourceIdentity.Compare)

	prevOf := make(map[grants.SourceIdentity]string)
	for _, c := range previous {
		members := c.Members()
		for _, m := range members {
			uf.add(m)
			uf.union(members[0], m)
			prevOf[m] = c.ID
		}
	}

	blocks := make(map[string][]*Candidate)
	var keys []string
	for _, id := range ids {
		uf.add(id)
		g := all[id]
		cand := NewCandidate(&g)
		for _, key := range cand.BlockingKeys() {
			if _, ok := blocks[key]; !ok {
				keys = append(keys, key)
			}
			blocks[key] = append(blocks[key], cand)
		}
	}
	slices.Sort(keys)

	for _, key := range keys {
		block := blocks[key]
		for i := 0; i < len(block); i++ {
			for j := i + 1; j < len(block); j++ {
				a, b := block[i], block[j]
				if uf.find(a.ID) == uf.find(b.ID) {
					continue
				}
				out.pairs++
				if r.matcher.Match(a, b) {
					out.matches++
					uf.union(a.ID, b.ID)
				}
			}
		}
	}

	for _, members := range uf.groups() {
		c := newCluster(members, r.ranking)
		out.clusters = append(out.clusters, c)

		var prevIDs []string
		for _, m := range members {
			if id, ok := prevOf[m]; ok && !slices.Contains(prevIDs, id) {
				prevIDs = append(prevIDs, id)
			}
		}
		if len(prevIDs) >= 2 {
			slices.Sort(prevIDs)
			out.merged = append(out.merged, grants.ChangeLogEntry{
				EntityType: grants.EntityCanonicalGrant,
				EntityID:   c.ID,
				Kind:       grants.ChangeMerged,
				OldValue:   strings.Join(prevIDs, ","),
				NewValue:   c.ID,
			})
		}
	}
	slices.SortFunc(out.clusters, func(a, b grants.CanonicalGrant) int {
		return strings.Compare(a.ID, b.ID)
	})
	out.changed = !clustersEqual(previous, out.clusters)
	return out
}

func clustersEqual(a, b []grants.CanonicalGrant) bool {
	return slices.EqualFunc(a, b, func(x, y grants.CanonicalGrant) bool {
		return x.ID == y.ID && x.Primary == y.Primary && slices.Equal(x.Aliases, y.Aliases)
	})
}

// Coalesce merges the awards of every cluster in snap. The primary keeps its
// values; aliases fill its gaps in ranking order. Clusters whose primary is
// not in snap are skipped.
func Coalesce(snap *store.Snapshot, ranking *authority.Ranking) []grants.CoalescedGrant {
	out := make([]grants.CoalescedGrant, 0, len(snap.Clusters))
	for _, c := range snap.Clusters {
		primary, ok := snap.Grants[c.Primary]
		if !ok {
			continue
		}
		aliases := slices.Clone(c.Aliases)
		slices.SortFunc(aliases, ranking.Compare)
		others := make([]grants.GrantAward, 0, len(aliases))
		for _, id := range aliases {
			if g, ok := snap.Grants[id]; ok {
				others = append(others, g)
			}
		}
		out = append(out, grants.CoalescedGrant{CanonicalGrant: c, Award: grants.Coalesce(primary, others...)})
	}
	return out
}
