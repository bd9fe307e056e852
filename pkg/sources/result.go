package sources

import (
	"time"

	"github.com/agentstation/fundingscape/pkg/grants"
)

// RunResult summarizes one connector run.
type RunResult struct {
	Source            ID            `json:"source" yaml:"source"`
	RecordsIn         int           `json:"records_in" yaml:"records_in"`                 // Raw records yielded
	RecordsNormalized int           `json:"records_normalized" yaml:"records_normalized"` // Accepted into the batch
	RecordsRejected   int           `json:"records_rejected" yaml:"records_rejected"`
	FieldErrors       int           `json:"field_errors" yaml:"field_errors"` // Fields nulled on accepted records
	FetchErrors       int           `json:"fetch_errors" yaml:"fetch_errors"`
	Fetches           int           `json:"fetches" yaml:"fetches"`
	Changed           bool          `json:"changed" yaml:"changed"` // Any fetch returned new bytes
	Health            grants.Health `json:"health" yaml:"health"`
	Message           string        `json:"message,omitempty" yaml:"message,omitempty"`
	ETag              string        `json:"etag,omitempty" yaml:"etag,omitempty"`
	LastModified      string        `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	Duration          time.Duration `json:"duration" yaml:"duration"`
}

// RejectionRate is rejected / (normalized + rejected), or 0 with no records.
func (r *RunResult) RejectionRate() float64 {
	total := r.RecordsNormalized + r.RecordsRejected
	if total == 0 {
		return 0
	}
	return float64(r.RecordsRejected) / float64(total)
}

// OK reports whether the run's records may be committed.
func (r *RunResult) OK() bool {
	return r.Health == grants.HealthOK || r.Health == grants.HealthStale
}
