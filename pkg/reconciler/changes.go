package reconciler

import (
	"bytes"
	"cmp"
	"encoding/json"
	"slices"

	"github.com/agentstation/fundingscape/pkg/differ"
	"github.com/agentstation/fundingscape/pkg/grants"
)

// callStatusKind classifies a call status change. Closing from open or
// forthcoming is "closed", any other forward move "updated", and a
// backward move "corrected".
func callStatusKind(old, updated grants.CallStatus) grants.ChangeKind {
	switch {
	case updated == grants.CallClosed && (old == grants.CallOpen || old == grants.CallForthcoming):
		return grants.ChangeClosed
	case updated.Rank() < old.Rank():
		return grants.ChangeCorrected
	default:
		return grants.ChangeUpdated
	}
}

func fieldEntries(entity grants.EntityType, id string, changes []differ.FieldChange, kind func(differ.FieldChange) grants.ChangeKind) []grants.ChangeLogEntry {
	entries := make([]grants.ChangeLogEntry, 0, len(changes))
	for _, c := range changes {
		entries = append(entries, grants.ChangeLogEntry{
			EntityType: entity,
			EntityID:   id,
			Kind:       kind(c),
			Field:      c.Path,
			OldValue:   c.OldValue,
			NewValue:   c.NewValue,
		})
	}
	return entries
}

func grantEntries(cs *differ.GrantChangeset) []grants.ChangeLogEntry {
	var entries []grants.ChangeLogEntry
	for _, g := range cs.Added {
		entries = append(entries, grants.ChangeLogEntry{
			EntityType: grants.EntityGrantAward,
			EntityID:   g.SourceIdentity.String(),
			Kind:       grants.ChangeNew,
		})
	}
	for _, u := range cs.Updated {
		entries = append(entries, fieldEntries(grants.EntityGrantAward, u.ID.String(), u.Changes,
			func(differ.FieldChange) grants.ChangeKind { return grants.ChangeUpdated })...)
	}
	return entries
}

func callEntries(cs *differ.CallChangeset) []grants.ChangeLogEntry {
	var entries []grants.ChangeLogEntry
	for _, c := range cs.Added {
		entries = append(entries, grants.ChangeLogEntry{
			EntityType: grants.EntityCall,
			EntityID:   c.SourceIdentity.String(),
			Kind:       grants.ChangeNew,
		})
	}
	for _, u := range cs.Updated {
		entries = append(entries, fieldEntries(grants.EntityCall, u.ID.String(), u.Changes,
			func(c differ.FieldChange) grants.ChangeKind {
				if c.Path != differ.FieldStatus {
					return grants.ChangeUpdated
				}
				return callStatusKind(grants.CallStatus(c.OldValue), grants.CallStatus(c.NewValue))
			})...)
	}
	return entries
}

// sortEntries orders entries by entity type, entity id, field, then kind.
func sortEntries(entries []grants.ChangeLogEntry) {
	slices.SortStableFunc(entries, func(a, b grants.ChangeLogEntry) int {
		return cmp.Or(
			cmp.Compare(a.EntityType, b.EntityType),
			cmp.Compare(a.EntityID, b.EntityID),
			cmp.Compare(a.Field, b.Field),
			cmp.Compare(a.Kind, b.Kind),
		)
	})
}

// sameJSON compares the stored form of two entities, so nil and empty
// slices are equal.
func sameJSON(a, b any) bool {
	x, err := json.Marshal(a)
	if err != nil {
		return false
	}
	y, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(x, y)
}

// overlayFunder copies the non-empty fields of f over base.
func overlayFunder(base, f grants.Funder) grants.Funder {
	base.ID = f.ID
	if f.Name != "" {
		base.Name = f.Name
	}
	if f.ShortName != "" {
		base.ShortName = f.ShortName
	}
	if f.Country != "" {
		base.Country = f.Country
	}
	if f.Category != "" {
		base.Category = f.Category
	}
	return base
}

// overlayInstrument copies the non-empty fields of i over base.
func overlayInstrument(base, i grants.FundingInstrument) grants.FundingInstrument {
	base.ID = i.ID
	if i.FunderID != "" {
		base.FunderID = i.FunderID
	}
	if i.Name != "" {
		base.Name = i.Name
	}
	if i.MinAmount != nil {
		base.MinAmount = i.MinAmount
	}
	if i.MaxAmount != nil {
		base.MaxAmount = i.MaxAmount
	}
	if i.Recurrence != "" {
		base.Recurrence = i.Recurrence
	}
	if i.DeadlinePolicy != "" {
		base.DeadlinePolicy = i.DeadlinePolicy
	}
	if i.URL != "" {
		base.URL = i.URL
	}
	return base
}
