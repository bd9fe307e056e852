// Package differ compares incoming grant awards and calls against their
// stored versions and reports changes to tracked fields.
package differ

import (
	"slices"

	"github.com/agentstation/fundingscape/pkg/grants"
)

// ChangeType represents the type of change.
type ChangeType string

const (
	// ChangeTypeAdd indicates an item was added.
	ChangeTypeAdd ChangeType = "add"
	// ChangeTypeUpdate indicates an item was updated.
	ChangeTypeUpdate ChangeType = "update"
)

// Tracked grant award fields.
const (
	FieldTitle     = "title"
	FieldAmount    = "amount"
	FieldCurrency  = "currency"
	FieldStartDate = "start_date"
	FieldEndDate   = "end_date"
	FieldStatus    = "status"
)

// Tracked call fields not shared with grants.
const (
	FieldOpeningDate = "opening_date"
	FieldDeadline    = "deadline"
	FieldBudget      = "budget"
)

// GrantFields lists the tracked grant award fields in comparison order.
var GrantFields = []string{FieldTitle, FieldAmount, FieldCurrency, FieldStartDate, FieldEndDate, FieldStatus}

// CallFields lists the tracked call fields in comparison order.
var CallFields = []string{FieldTitle, FieldStatus, FieldOpeningDate, FieldDeadline, FieldBudget}

// FieldChange represents a change to a specific field.
type FieldChange struct {
	Path     string     // Field name (e.g., "amount")
	OldValue string     // Previous value (string representation)
	NewValue string     // New value (string representation)
	Type     ChangeType // Type of change
	Source   string     // Source that reported the new value
}

// Differ handles change detection between stored and incoming entities.
type Differ interface {
	// Grants compares incoming awards with the stored ones by source identity.
	Grants(existing map[grants.SourceIdentity]grants.GrantAward, updated []grants.GrantAward) *GrantChangeset

	// Calls compares incoming calls with the stored ones by source identity.
	Calls(existing map[grants.SourceIdentity]grants.Call, updated []grants.Call) *CallChangeset

	// Grant returns the tracked field changes from old to updated.
	Grant(old, updated *grants.GrantAward) []FieldChange

	// Call returns the tracked field changes from old to updated.
	Call(old, updated *grants.Call) []FieldChange
}

// differ is the default implementation of Differ.
type differ struct {
	ignoreFields map[string]bool
}

// New creates a Differ with default settings.
func New(opts ...Option) Differ {
	d := &differ{ignoreFields: make(map[string]bool)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Grants compares two sets of awards and returns changes.
func (diff *differ) Grants(existing map[grants.SourceIdentity]grants.GrantAward, updated []grants.GrantAward) *GrantChangeset {
	changeset := &GrantChangeset{}
	for i := range updated {
		g := &updated[i]
		old, ok := existing[g.SourceIdentity]
		if !ok {
			changeset.Added = append(changeset.Added, *g)
			continue
		}
		if changes := diff.Grant(&old, g); len(changes) > 0 {
			changeset.Updated = append(changeset.Updated, GrantUpdate{
				ID:       g.SourceIdentity,
				Existing: old,
				New:      *g,
				Changes:  changes,
			})
		}
	}
	slices.SortFunc(changeset.Added, func(a, b grants.GrantAward) int {
		return a.SourceIdentity.Compare(b.SourceIdentity)
	})
	slices.SortFunc(changeset.Updated, func(a, b GrantUpdate) int {
		return a.ID.Compare(b.ID)
	})
	return changeset
}

// Calls compares two sets of calls and returns changes.
func (diff *differ) Calls(existing map[grants.SourceIdentity]grants.Call, updated []grants.Call) *CallChangeset {
	changeset := &CallChangeset{}
	for i := range updated {
		c := &updated[i]
		old, ok := existing[c.SourceIdentity]
		if !ok {
			changeset.Added = append(changeset.Added, *c)
			continue
		}
		if changes := diff.Call(&old, c); len(changes) > 0 {
			changeset.Updated = append(changeset.Updated, CallUpdate{
				ID:       c.SourceIdentity,
				Existing: old,
				New:      *c,
				Changes:  changes,
			})
		}
	}
	slices.SortFunc(changeset.Added, func(a, b grants.Call) int {
		return a.SourceIdentity.Compare(b.SourceIdentity)
	})
	slices.SortFunc(changeset.Updated, func(a, b CallUpdate) int {
		return a.ID.Compare(b.ID)
	})
	return changeset
}

// Grant compares the tracked fields of two awards.
func (diff *differ) Grant(old, updated *grants.GrantAward) []FieldChange {
	values := func(g *grants.GrantAward) map[string]string {
		return map[string]string{
			FieldTitle:     g.Title,
			FieldAmount:    g.Amount.Decimal(),
			FieldCurrency:  g.Amount.CurrencyCode(),
			FieldStartDate: g.StartDate.String(),
			FieldEndDate:   g.EndDate.String(),
			FieldStatus:    string(g.Status),
		}
	}
	return diff.compare(GrantFields, values(old), values(updated), updated.Source)
}

// Call compares the tracked fields of two calls.
func (diff *differ) Call(old, updated *grants.Call) []FieldChange {
	values := func(c *grants.Call) map[string]string {
		return map[string]string{
			FieldTitle:       c.Title,
			FieldStatus:      string(c.Status),
			FieldOpeningDate: c.OpeningDate.String(),
			FieldDeadline:    c.Deadline.String(),
			FieldBudget:      c.Budget.String(),
		}
	}
	return diff.compare(CallFields, values(old), values(updated), updated.Source)
}

func (diff *differ) compare(fields []string, old, updated map[string]string, source string) []FieldChange {
	var changes []FieldChange
	for _, field := range fields {
		if diff.ignoreFields[field] || old[field] == updated[field] {
			continue
		}
		changeType := ChangeTypeUpdate
		if old[field] == "" {
			changeType = ChangeTypeAdd
		}
		changes = append(changes, FieldChange{
			Path:     field,
			OldValue: old[field],
			NewValue: updated[field],
			Type:     changeType,
			Source:   source,
		})
	}
	return changes
}
