package grants

import "slices"

// CoalescedGrant is a canonical grant with one merged award.
type CoalescedGrant struct {
	CanonicalGrant `yaml:",inline"`

	Award GrantAward `json:"award" yaml:"award"`
}

// Coalesce returns primary with its empty fields filled from others, the
// first non-empty value winning. Identity and title stay the primary's;
// stored awards are not modified.
func Coalesce(primary GrantAward, others ...GrantAward) GrantAward {
	out := primary
	out.Amount = primary.Amount.clone()
	out.Partners = slices.Clone(primary.Partners)
	out.Keywords = slices.Clone(primary.Keywords)

	for _, o := range others {
		fill(&out.FunderID, o.FunderID)
		fill(&out.InstrumentID, o.InstrumentID)
		fill(&out.ProjectID, o.ProjectID)
		fill(&out.Acronym, o.Acronym)
		fill(&out.Abstract, o.Abstract)
		fill(&out.PI.Name, o.PI.Name)
		fill(&out.PI.Institution, o.PI.Institution)
		fill(&out.PI.Country, o.PI.Country)
		fill(&out.StartDate, o.StartDate)
		fill(&out.EndDate, o.EndDate)
		fill(&out.Status, o.Status)
		if out.Amount == nil {
			out.Amount = o.Amount.clone()
		}
		if len(out.Partners) == 0 {
			out.Partners = slices.Clone(o.Partners)
		}
		if len(out.Keywords) == 0 {
			out.Keywords = slices.Clone(o.Keywords)
		}
	}
	return out
}

func fill[T comparable](dst *T, src T) {
	var zero T
	if *dst == zero {
		*dst = src
	}
}

func (m *Money) clone() *Money {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
