package grants

import "slices"

// FunderCategory classifies a funding body.
type FunderCategory string

// Funder categories.
const (
	FunderSupranational     FunderCategory = "supranational"
	FunderNationalFederal   FunderCategory = "national-federal"
	FunderNationalState     FunderCategory = "national-state"
	FunderPrivateFoundation FunderCategory = "private-foundation"
	FunderForeignGovernment FunderCategory = "foreign-government"
)

// FunderCategories returns every valid category.
func FunderCategories() []FunderCategory {
	return []FunderCategory{
		FunderSupranational,
		FunderNationalFederal,
		FunderNationalState,
		FunderPrivateFoundation,
		FunderForeignGovernment,
	}
}

// IsValid reports whether c is a known category.
func (c FunderCategory) IsValid() bool {
	return slices.Contains(FunderCategories(), c)
}

// Recurrence is how often an instrument opens calls.
type Recurrence string

// Recurrence patterns.
const (
	RecurrenceAnnual    Recurrence = "annual"
	RecurrenceBiannual  Recurrence = "biannual"
	RecurrenceRolling   Recurrence = "rolling"
	RecurrenceOneTime   Recurrence = "one-time"
	RecurrenceIrregular Recurrence = "irregular"
)

// DeadlinePolicy describes how submissions close.
type DeadlinePolicy string

// Deadline policies.
const (
	DeadlineFixed      DeadlinePolicy = "fixed"
	DeadlineRolling    DeadlinePolicy = "rolling"
	DeadlineContinuous DeadlinePolicy = "continuous"
)

// CallStatus is the lifecycle state of a call.
type CallStatus string

// Call statuses, in lifecycle order.
const (
	CallForthcoming     CallStatus = "forthcoming"
	CallOpen            CallStatus = "open"
	CallUnderEvaluation CallStatus = "under-evaluation"
	CallClosed          CallStatus = "closed"
)

// Rank orders statuses along the forward lifecycle. Unknown statuses rank -1.
func (s CallStatus) Rank() int {
	switch s {
	case CallForthcoming:
		return 0
	case CallOpen:
		return 1
	case CallUnderEvaluation:
		return 2
	case CallClosed:
		return 3
	default:
		return -1
	}
}

// IsValid reports whether s is a known status.
func (s CallStatus) IsValid() bool {
	return s.Rank() >= 0
}

// GrantStatus is the lifecycle state of an award.
type GrantStatus string

// Grant statuses.
const (
	GrantActive     GrantStatus = "active"
	GrantCompleted  GrantStatus = "completed"
	GrantTerminated GrantStatus = "terminated"
)

// IsValid reports whether s is a known status.
func (s GrantStatus) IsValid() bool {
	return s == GrantActive || s == GrantCompleted || s == GrantTerminated
}

// EntityType names the entity a ChangeLogEntry refers to.
type EntityType string

// Entity types.
const (
	EntityFunder         EntityType = "funder"
	EntityInstrument     EntityType = "instrument"
	EntityCall           EntityType = "call"
	EntityGrantAward     EntityType = "grant_award"
	EntityCanonicalGrant EntityType = "canonical_grant"
)

// ChangeKind classifies a ChangeLogEntry.
type ChangeKind string

// Change kinds.
const (
	ChangeNew       ChangeKind = "new"
	ChangeUpdated   ChangeKind = "updated"
	ChangeClosed    ChangeKind = "closed"
	ChangeMerged    ChangeKind = "merged"
	ChangeCorrected ChangeKind = "corrected"
)

// Health is the outcome of a source run.
type Health string

// Health states.
const (
	HealthOK           Health = "ok"
	HealthError        Health = "error"
	HealthStale        Health = "stale"
	HealthNeverFetched Health = "never-fetched"
)
