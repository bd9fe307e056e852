package reconciler

import (
	"fmt"
	"time"

	"github.com/agentstation/fundingscape/pkg/differ"
	"github.com/agentstation/fundingscape/pkg/grants"
)

// Result represents the outcome of one reconciliation.
type Result struct {
	RunID     string
	Changeset *differ.Changeset

	// Entries counts the planned change-log entries by kind.
	Entries map[grants.ChangeKind]int

	Metadata ResultMetadata
}

// ResultMetadata contains metadata about the reconciliation process.
type ResultMetadata struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Matcher used for duplicate detection
	Matcher MatcherType

	Stats ResultStatistics
}

// ResultStatistics contains statistics about the reconciliation.
type ResultStatistics struct {
	GrantsProcessed     int
	CallsProcessed      int
	FundersUpserted     int
	InstrumentsUpserted int
	GrantsUpserted      int
	CallsUpserted       int
	CandidatePairs      int
	Matches             int
	Clusters            int
	Merges              int
	ClustersChanged     bool
}

// NewResult creates a new result with defaults.
func NewResult(runID string, start time.Time) *Result {
	return &Result{
		RunID:    runID,
		Entries:  make(map[grants.ChangeKind]int),
		Metadata: ResultMetadata{StartTime: start},
	}
}

// Finalize calculates duration and marks completion.
func (r *Result) Finalize(end time.Time) {
	r.Metadata.EndTime = end
	r.Metadata.Duration = end.Sub(r.Metadata.StartTime)
}

// TotalEntries returns the number of planned change-log entries.
func (r *Result) TotalEntries() int {
	total := 0
	for _, n := range r.Entries {
		total += n
	}
	return total
}

// HasChanges returns true if anything would be written.
func (r *Result) HasChanges() bool {
	s := r.Metadata.Stats
	return r.TotalEntries() > 0 || s.ClustersChanged ||
		s.FundersUpserted+s.InstrumentsUpserted+s.GrantsUpserted+s.CallsUpserted > 0
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	if !r.HasChanges() {
		return "Reconciliation completed. No changes detected."
	}
	s := r.Metadata.Stats
	return fmt.Sprintf("Reconciliation completed. %d change-log entries (%d new, %d updated, %d closed, %d merged, %d corrected), %d clusters.",
		r.TotalEntries(),
		r.Entries[grants.ChangeNew],
		r.Entries[grants.ChangeUpdated],
		r.Entries[grants.ChangeClosed],
		r.Entries[grants.ChangeMerged],
		r.Entries[grants.ChangeCorrected],
		s.Clusters)
}
