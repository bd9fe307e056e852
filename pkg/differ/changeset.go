package differ

import (
	"fmt"
	"io"
	"strings"

	"github.com/agentstation/fundingscape/pkg/grants"
)

// GrantUpdate represents an update to a stored award.
type GrantUpdate struct {
	ID       grants.SourceIdentity // Identity of the award being updated
	Existing grants.GrantAward     // Stored award
	New      grants.GrantAward     // Incoming award
	Changes  []FieldChange         // Tracked field changes
}

// CallUpdate represents an update to a stored call.
type CallUpdate struct {
	ID       grants.SourceIdentity
	Existing grants.Call
	New      grants.Call
	Changes  []FieldChange
}

// GrantChangeset represents changes to awards. Nothing is ever removed.
type GrantChangeset struct {
	Added   []grants.GrantAward
	Updated []GrantUpdate
}

// CallChangeset represents changes to calls.
type CallChangeset struct {
	Added   []grants.Call
	Updated []CallUpdate
}

// Changeset represents all changes in one reconciliation.
type Changeset struct {
	Grants  *GrantChangeset
	Calls   *CallChangeset
	Summary ChangesetSummary
}

// ChangesetSummary provides summary statistics for a changeset.
type ChangesetSummary struct {
	GrantsAdded   int
	GrantsUpdated int
	CallsAdded    int
	CallsUpdated  int
	FieldChanges  int
	TotalChanges  int
}

// NewChangeset builds a changeset and its summary. Nil parts are treated as empty.
func NewChangeset(g *GrantChangeset, c *CallChangeset) *Changeset {
	if g == nil {
		g = &GrantChangeset{}
	}
	if c == nil {
		c = &CallChangeset{}
	}
	return &Changeset{Grants: g, Calls: c, Summary: calculateSummary(g, c)}
}

func calculateSummary(g *GrantChangeset, c *CallChangeset) ChangesetSummary {
	s := ChangesetSummary{
		GrantsAdded:   len(g.Added),
		GrantsUpdated: len(g.Updated),
		CallsAdded:    len(c.Added),
		CallsUpdated:  len(c.Updated),
	}
	for _, u := range g.Updated {
		s.FieldChanges += len(u.Changes)
	}
	for _, u := range c.Updated {
		s.FieldChanges += len(u.Changes)
	}
	s.TotalChanges = s.GrantsAdded + s.GrantsUpdated + s.CallsAdded + s.CallsUpdated
	return s
}

// IsEmpty returns true if the changeset contains no changes.
func (c *Changeset) IsEmpty() bool {
	return c.Summary.TotalChanges == 0
}

// HasChanges returns true if the award changeset contains any changes.
func (g *GrantChangeset) HasChanges() bool {
	return len(g.Added) > 0 || len(g.Updated) > 0
}

// HasChanges returns true if the call changeset contains any changes.
func (c *CallChangeset) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Updated) > 0
}

// String returns a human-readable summary of the changeset.
func (c *Changeset) String() string {
	if c.IsEmpty() {
		return "No changes detected"
	}

	var parts []string
	if c.Grants.HasChanges() {
		parts = append(parts, fmt.Sprintf("Grants: %s", counts(len(c.Grants.Added), len(c.Grants.Updated))))
	}
	if c.Calls.HasChanges() {
		parts = append(parts, fmt.Sprintf("Calls: %s", counts(len(c.Calls.Added), len(c.Calls.Updated))))
	}
	return fmt.Sprintf("Changeset: %s (Total: %d changes)", strings.Join(parts, "; "), c.Summary.TotalChanges)
}

func counts(added, updated int) string {
	var parts []string
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", added))
	}
	if updated > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", updated))
	}
	return strings.Join(parts, ", ")
}

// Fprint writes a detailed, human-readable view of the changeset to w.
func (c *Changeset) Fprint(w io.Writer) {
	_, _ = fmt.Fprintln(w, c.String())
	if c.IsEmpty() {
		return
	}
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 80))

	if len(c.Grants.Added) > 0 {
		_, _ = fmt.Fprintf(w, "\nAdded Grants (%d):\n", len(c.Grants.Added))
		for _, g := range c.Grants.Added {
			_, _ = fmt.Fprintf(w, "  • %s (%s)\n", g.SourceIdentity, g.Title)
		}
	}
	if len(c.Grants.Updated) > 0 {
		_, _ = fmt.Fprintf(w, "\nUpdated Grants (%d):\n", len(c.Grants.Updated))
		for _, u := range c.Grants.Updated {
			printUpdate(w, u.ID, u.Changes)
		}
	}
	if len(c.Calls.Added) > 0 {
		_, _ = fmt.Fprintf(w, "\nAdded Calls (%d):\n", len(c.Calls.Added))
		for _, call := range c.Calls.Added {
			_, _ = fmt.Fprintf(w, "  • %s (%s)\n", call.SourceIdentity, call.Title)
		}
	}
	if len(c.Calls.Updated) > 0 {
		_, _ = fmt.Fprintf(w, "\nUpdated Calls (%d):\n", len(c.Calls.Updated))
		for _, u := range c.Calls.Updated {
			printUpdate(w, u.ID, u.Changes)
		}
	}
}

func printUpdate(w io.Writer, id grants.SourceIdentity, changes []FieldChange) {
	_, _ = fmt.Fprintf(w, "  • %s:\n", id)
	for _, change := range changes {
		_, _ = fmt.Fprintf(w, "    - %s: %s → %s\n", change.Path, change.OldValue, change.NewValue)
	}
}
