// Package grants defines the canonical entity model shared by the normalizer,
// reconciler and store: funders, instruments, calls, grant awards, the
// reconciled canonical grants, the change log, and per-source run records.
package grants

import (
	"slices"
	"strings"

	"github.com/agentstation/utc"
)

// SourceIdentity identifies a record within one connector. It is unique per
// source but not globally unique.
type SourceIdentity struct {
	Source  string `json:"source" yaml:"source"`
	LocalID string `json:"source_id" yaml:"source_id"`
}

// String returns "source:local-id".
func (id SourceIdentity) String() string {
	return id.Source + ":" + id.LocalID
}

// IsZero reports whether the identity is empty.
func (id SourceIdentity) IsZero() bool {
	return id.Source == "" && id.LocalID == ""
}

// Compare orders identities by source, then local id.
func (id SourceIdentity) Compare(other SourceIdentity) int {
	if c := strings.Compare(id.Source, other.Source); c != 0 {
		return c
	}
	return strings.Compare(id.LocalID, other.LocalID)
}

// ParseSourceIdentity splits "source:local-id" at the first colon.
func ParseSourceIdentity(s string) SourceIdentity {
	source, local, _ := strings.Cut(s, ":")
	return SourceIdentity{Source: source, LocalID: local}
}

// Funder is a funding body.
type Funder struct {
	ID        string         `json:"id" yaml:"id"`                                     // Derived from name + country
	Name      string         `json:"name" yaml:"name"`                                 // Full name as first observed
	ShortName string         `json:"short_name,omitempty" yaml:"short_name,omitempty"` // Acronym (EC, DFG, NSF)
	Country   string         `json:"country,omitempty" yaml:"country,omitempty"`       // ISO 3166-1 alpha-2
	Category  FunderCategory `json:"category,omitempty" yaml:"category,omitempty"`
}

// FundingInstrument is a recurring programme or scheme of one Funder.
type FundingInstrument struct {
	ID             string         `json:"id" yaml:"id"`
	FunderID       string         `json:"funder_id" yaml:"funder_id"`
	Name           string         `json:"name" yaml:"name"`
	MinAmount      *Money         `json:"min_amount,omitempty" yaml:"min_amount,omitempty"` // Typical amount range
	MaxAmount      *Money         `json:"max_amount,omitempty" yaml:"max_amount,omitempty"`
	Recurrence     Recurrence     `json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
	DeadlinePolicy DeadlinePolicy `json:"deadline_policy,omitempty" yaml:"deadline_policy,omitempty"`
	URL            string         `json:"url,omitempty" yaml:"url,omitempty"`
}

// Call is a time-bounded proposal opportunity.
type Call struct {
	SourceIdentity `yaml:",inline"`

	InstrumentID       string     `json:"instrument_id,omitempty" yaml:"instrument_id,omitempty"`
	FunderID           string     `json:"funder_id,omitempty" yaml:"funder_id,omitempty"`
	CallIdentifier     string     `json:"call_identifier,omitempty" yaml:"call_identifier,omitempty"` // External id, e.g. HORIZON-CL4-2025-01
	Title              string     `json:"title" yaml:"title"`
	Description        string     `json:"description,omitempty" yaml:"description,omitempty"`
	URL                string     `json:"url,omitempty" yaml:"url,omitempty"`
	OpeningDate        Date       `json:"opening_date,omitzero" yaml:"opening_date,omitempty"`
	Deadline           Date       `json:"deadline,omitzero" yaml:"deadline,omitempty"`
	Status             CallStatus `json:"status" yaml:"status"`
	Budget             *Money     `json:"budget,omitempty" yaml:"budget,omitempty"`
	Keywords           []string   `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	FrameworkProgramme string     `json:"framework_programme,omitempty" yaml:"framework_programme,omitempty"`
}

// Identity returns the call's source identity.
func (c *Call) Identity() SourceIdentity {
	return c.SourceIdentity
}

// Investigator is the principal investigator of a grant.
type Investigator struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Institution string `json:"institution,omitempty" yaml:"institution,omitempty"`
	Country     string `json:"country,omitempty" yaml:"country,omitempty"`
}

// GrantAward is an awarded grant as reported by one source.
type GrantAward struct {
	SourceIdentity `yaml:",inline"`

	FunderID     string       `json:"funder_id,omitempty" yaml:"funder_id,omitempty"`
	InstrumentID string       `json:"instrument_id,omitempty" yaml:"instrument_id,omitempty"`
	ProjectID    string       `json:"project_id,omitempty" yaml:"project_id,omitempty"` // External project identifier
	Acronym      string       `json:"acronym,omitempty" yaml:"acronym,omitempty"`
	Title        string       `json:"title" yaml:"title"`
	Abstract     string       `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	PI           Investigator `json:"pi,omitzero" yaml:"pi,omitempty"`
	StartDate    Date         `json:"start_date,omitzero" yaml:"start_date,omitempty"`
	EndDate      Date         `json:"end_date,omitzero" yaml:"end_date,omitempty"`
	Amount       *Money       `json:"amount,omitempty" yaml:"amount,omitempty"`
	Status       GrantStatus  `json:"status,omitempty" yaml:"status,omitempty"`
	Partners     []string     `json:"partners,omitempty" yaml:"partners,omitempty"`
	Keywords     []string     `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// Identity returns the award's source identity.
func (g *GrantAward) Identity() SourceIdentity {
	return g.SourceIdentity
}

// CanonicalGrant is the reconciled belief about one real-world grant.
type CanonicalGrant struct {
	ID      string           `json:"id" yaml:"id"`
	Primary SourceIdentity   `json:"primary" yaml:"primary"`
	Aliases []SourceIdentity `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Size is the number of member records.
func (c CanonicalGrant) Size() int { return len(c.Aliases) + 1 }

// Members returns the primary followed by the aliases.
func (c *CanonicalGrant) Members() []SourceIdentity {
	return append([]SourceIdentity{c.Primary}, c.Aliases...)
}

// Contains reports whether id is a member of the cluster.
func (c *CanonicalGrant) Contains(id SourceIdentity) bool {
	return c.Primary == id || slices.Contains(c.Aliases, id)
}

// ChangeLogEntry is an immutable audit record.
type ChangeLogEntry struct {
	Seq        int64      `json:"seq,omitempty" yaml:"seq,omitempty"` // Assigned by the store
	RunID      string     `json:"run_id" yaml:"run_id"`
	EntityType EntityType `json:"entity_type" yaml:"entity_type"`
	EntityID   string     `json:"entity_id" yaml:"entity_id"`
	Kind       ChangeKind `json:"kind" yaml:"kind"`
	Field      string     `json:"field,omitempty" yaml:"field,omitempty"`
	OldValue   string     `json:"old_value,omitempty" yaml:"old_value,omitempty"`
	NewValue   string     `json:"new_value,omitempty" yaml:"new_value,omitempty"`
	DetectedAt utc.Time   `json:"detected_at" yaml:"detected_at"`
}

// SourceRunRecord is per-source bookkeeping, updated once per run.
type SourceRunRecord struct {
	Source       string    `json:"source" yaml:"source"`
	RunID        string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	LastFetch    *utc.Time `json:"last_fetch,omitempty" yaml:"last_fetch,omitempty"`
	LastSuccess  *utc.Time `json:"last_success,omitempty" yaml:"last_success,omitempty"` // Only advances when Health is ok
	RecordCount  int       `json:"record_count" yaml:"record_count"`
	ETag         string    `json:"etag,omitempty" yaml:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	Health       Health    `json:"health" yaml:"health"`
	Message      string    `json:"message,omitempty" yaml:"message,omitempty"`
}
