// Package authority decides which source is trusted most when several
// sources report the same grant.
//
// Sources are ranked by an explicit priority list: earlier entries win.
// Sources missing from the list rank after every listed source, in name
// order, so a ranking is total and deterministic for any input.
package authority

import (
	"slices"
	"strings"

	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// Ranking orders sources by trust.
type Ranking struct {
	order map[string]int
}

// New creates a ranking from priority, highest trust first. Duplicate
// entries keep their first position.
func New(priority []string) *Ranking {
	r := &Ranking{order: make(map[string]int, len(priority))}
	for _, source := range priority {
		if _, ok := r.order[source]; ok || source == "" {
			continue
		}
		r.order[source] = len(r.order)
	}
	return r
}

// Default ranks the known sources in their registry order.
func Default() *Ranking {
	ids := sources.IDs()
	priority := make([]string, len(ids))
	for i, id := range ids {
		priority[i] = id.String()
	}
	return New(priority)
}

// Rank returns the position of source; unlisted sources share the lowest rank.
func (r *Ranking) Rank(source string) int {
	if i, ok := r.order[source]; ok {
		return i
	}
	return len(r.order)
}

// Compare orders identities by rank, then source name, then local id.
func (r *Ranking) Compare(a, b grants.SourceIdentity) int {
	if ra, rb := r.Rank(a.Source), r.Rank(b.Source); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	return strings.Compare(a.LocalID, b.LocalID)
}

// Primary returns the most trusted member, or the zero identity when
// members is empty.
func (r *Ranking) Primary(members []grants.SourceIdentity) grants.SourceIdentity {
	if len(members) == 0 {
		return grants.SourceIdentity{}
	}
	return slices.MinFunc(members, r.Compare)
}

// Sort orders members from most to least trusted.
func (r *Ranking) Sort(members []grants.SourceIdentity) {
	slices.SortFunc(members, r.Compare)
}
