package reconciler

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/normalize"
)

// MatcherType represents the type of duplicate matcher.
type MatcherType string

// String returns the string representation of a matcher type.
func (m MatcherType) String() string {
	return string(m)
}

const (
	// MatcherTypeRules matches on title similarity, amount and dates.
	MatcherTypeRules MatcherType = "rules"
)

// Matcher decides whether two awards denote the same real-world grant.
// Match must be symmetric.
type Matcher interface {
	// Type returns the matcher type
	Type() MatcherType

	// Description returns a human-readable description
	Description() string

	// Match reports whether a and b are duplicates
	Match(a, b *Candidate) bool
}

// Candidate is an award prepared for matching.
type Candidate struct {
	ID    grants.SourceIdentity
	Grant *grants.GrantAward
	Title string // normalized title key

	bigrams map[string]int
	size    int
}

// NewCandidate precomputes the match keys of g.
func NewCandidate(g *grants.GrantAward) *Candidate {
	c := &Candidate{ID: g.SourceIdentity, Grant: g, Title: normalize.TitleKey(g.Title)}
	c.bigrams, c.size = bigrams(c.Title)
	return c
}

// BlockingKeys returns the blocks c joins: its project key, and its title
// key with PI country and start year.
func (c *Candidate) BlockingKeys() []string {
	var keys []string
	if p := normalize.ProjectKey(c.Grant.ProjectID); p != "" {
		keys = append(keys, "p:"+p)
	}
	if c.Title != "" {
		keys = append(keys, fmt.Sprintf("t:%s|%s|%d", c.Title, c.Grant.PI.Country, c.Grant.StartDate.Year))
	}
	return keys
}

// ruleMatcher requires all of title similarity, amount agreement and date proximity.
type ruleMatcher struct {
	similarity      float64
	amountTolerance float64
	dateTolerance   int // days
}

// NewRuleMatcher returns the default matcher.
func NewRuleMatcher(similarity, amountTolerance float64, dateTolerance time.Duration) Matcher {
	return &ruleMatcher{
		similarity:      similarity,
		amountTolerance: amountTolerance,
		dateTolerance:   int(dateTolerance / (24 * time.Hour)),
	}
}

// Type returns the matcher type.
func (m *ruleMatcher) Type() MatcherType {
	return MatcherTypeRules
}

// Description returns a human-readable description.
func (m *ruleMatcher) Description() string {
	return fmt.Sprintf("title similarity >= %.2f, amounts within %.0f%%, date gap <= %d days",
		m.similarity, m.amountTolerance*100, m.dateTolerance)
}

// Match implements Matcher.
func (m *ruleMatcher) Match(a, b *Candidate) bool {
	return Similarity(a, b) >= m.similarity &&
		amountsAgree(a.Grant.Amount, b.Grant.Amount, m.amountTolerance) &&
		datesAgree(a.Grant, b.Grant, m.dateTolerance)
}

// Similarity is the Sørensen–Dice coefficient over the character bigrams
// of the normalized titles, spaces removed.
func Similarity(a, b *Candidate) float64 {
	if a.Title == "" || b.Title == "" {
		return 0
	}
	if a.Title == b.Title {
		return 1
	}
	if a.size == 0 || b.size == 0 {
		return 0
	}
	shared := 0
	for gram, n := range a.bigrams {
		shared += min(n, b.bigrams[gram])
	}
	return 2 * float64(shared) / float64(a.size+b.size)
}

func bigrams(title string) (map[string]int, int) {
	runes := []rune(strings.ReplaceAll(title, " ", ""))
	if len(runes) < 2 {
		return nil, 0
	}
	grams := make(map[string]int, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams, len(runes) - 1
}

// amountsAgree never compares across currencies.
func amountsAgree(a, b *grants.Money, tolerance float64) bool {
	if a.IsZero() || b.IsZero() || a.Currency != b.Currency {
		return true
	}
	x, y := math.Abs(float64(a.Minor)), math.Abs(float64(b.Minor))
	return math.Abs(x-y) <= tolerance*max(x, y)
}

// datesAgree accepts overlapping ranges, ranges within tolerance days of
// each other, and any range with no dates at all.
func datesAgree(a, b *grants.GrantAward, tolerance int) bool {
	as, ae, ok := dateRange(a)
	if !ok {
		return true
	}
	bs, be, ok := dateRange(b)
	if !ok {
		return true
	}
	gap := 0
	switch {
	case ae.Before(bs):
		gap = ae.DaysUntil(bs)
	case be.Before(as):
		gap = be.DaysUntil(as)
	}
	return gap <= tolerance
}

// dateRange fills a missing end from the start and the other way round.
func dateRange(g *grants.GrantAward) (start, end grants.Date, ok bool) {
	start, end = g.StartDate, g.EndDate
	switch {
	case start.IsZero() && end.IsZero():
		return start, end, false
	case start.IsZero():
		start = end
	case end.IsZero():
		end = start
	}
	return start, end, true
}
