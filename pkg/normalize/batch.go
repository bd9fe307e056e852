package normalize

import (
	"maps"
	"slices"
	"strings"

	"github.com/agentstation/fundingscape/pkg/grants"
)

// Batch stages the normalized records of one or more sources. Records are
// keyed by identity, so a later record with the same source identity
// replaces an earlier one.
type Batch struct {
	funders     map[string]grants.Funder
	instruments map[string]grants.FundingInstrument
	grants      map[grants.SourceIdentity]grants.GrantAward
	calls       map[grants.SourceIdentity]grants.Call

	// Replaced counts records that overwrote an earlier one with the same identity.
	Replaced int
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{
		funders:     make(map[string]grants.Funder),
		instruments: make(map[string]grants.FundingInstrument),
		grants:      make(map[grants.SourceIdentity]grants.GrantAward),
		calls:       make(map[grants.SourceIdentity]grants.Call),
	}
}

// Add stages rec.
func (b *Batch) Add(rec *Record) {
	if rec == nil {
		return
	}
	if rec.Funder != nil {
		b.addFunder(*rec.Funder)
	}
	if rec.Instrument != nil {
		b.addInstrument(*rec.Instrument)
	}
	if rec.Grant != nil {
		if _, dup := b.grants[rec.Grant.SourceIdentity]; dup {
			b.Replaced++
		}
		b.grants[rec.Grant.SourceIdentity] = *rec.Grant
	}
	if rec.Call != nil {
		if _, dup := b.calls[rec.Call.SourceIdentity]; dup {
			b.Replaced++
		}
		b.calls[rec.Call.SourceIdentity] = *rec.Call
	}
}

// Merge stages every record of other into b.
func (b *Batch) Merge(other *Batch) {
	if other == nil {
		return
	}
	for _, f := range other.funders {
		b.addFunder(f)
	}
	for _, i := range other.instruments {
		b.addInstrument(i)
	}
	maps.Copy(b.grants, other.grants)
	maps.Copy(b.calls, other.calls)
	b.Replaced += other.Replaced
}

// addFunder overlays the non-empty fields of f on any staged funder.
func (b *Batch) addFunder(f grants.Funder) {
	if old, ok := b.funders[f.ID]; ok {
		if f.ShortName == "" {
			f.ShortName = old.ShortName
		}
		if f.Category == "" {
			f.Category = old.Category
		}
	}
	b.funders[f.ID] = f
}

func (b *Batch) addInstrument(i grants.FundingInstrument) {
	if old, ok := b.instruments[i.ID]; ok {
		if i.MinAmount == nil {
			i.MinAmount = old.MinAmount
		}
		if i.MaxAmount == nil {
			i.MaxAmount = old.MaxAmount
		}
		if i.Recurrence == "" {
			i.Recurrence = old.Recurrence
		}
		if i.DeadlinePolicy == "" {
			i.DeadlinePolicy = old.DeadlinePolicy
		}
		if i.URL == "" {
			i.URL = old.URL
		}
	}
	b.instruments[i.ID] = i
}

// Len returns the number of staged grants and calls.
func (b *Batch) Len() int {
	return len(b.grants) + len(b.calls)
}

// Funders returns the staged funders sorted by id.
func (b *Batch) Funders() []grants.Funder {
	return slices.SortedFunc(maps.Values(b.funders), func(x, y grants.Funder) int {
		return strings.Compare(x.ID, y.ID)
	})
}

// Instruments returns the staged instruments sorted by id.
func (b *Batch) Instruments() []grants.FundingInstrument {
	return slices.SortedFunc(maps.Values(b.instruments), func(x, y grants.FundingInstrument) int {
		return strings.Compare(x.ID, y.ID)
	})
}

// Grants returns the staged awards sorted by source identity.
func (b *Batch) Grants() []grants.GrantAward {
	return slices.SortedFunc(maps.Values(b.grants), func(x, y grants.GrantAward) int {
		return x.SourceIdentity.Compare(y.SourceIdentity)
	})
}

// Calls returns the staged calls sorted by source identity.
func (b *Batch) Calls() []grants.Call {
	return slices.SortedFunc(maps.Values(b.calls), func(x, y grants.Call) int {
		return x.SourceIdentity.Compare(y.SourceIdentity)
	})
}
