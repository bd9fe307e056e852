package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/reconciler"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// Report is the outcome of one Run.
type Report struct {
	RunID     string
	DryRun    bool
	Committed bool
	Sources   []*sources.RunResult // In run order
	Reconcile *reconciler.Result
	StartTime time.Time
	Duration  time.Duration
}

// Source returns the result of id, or nil if it did not run.
func (r *Report) Source(id sources.ID) *sources.RunResult {
	for _, res := range r.Sources {
		if res.Source == id {
			return res
		}
	}
	return nil
}

// Failed returns the sources whose run ended in error.
func (r *Report) Failed() []sources.ID {
	var ids []sources.ID
	for _, res := range r.Sources {
		if res.Health == grants.HealthError {
			ids = append(ids, res.Source)
		}
	}
	return ids
}

// Changed reports whether any source fetched new bytes.
func (r *Report) Changed() bool {
	for _, res := range r.Sources {
		if res.Changed {
			return true
		}
	}
	return false
}

// Summary returns a human-readable summary of the run.
func (r *Report) Summary() string {
	var b strings.Builder
	counts := map[grants.Health]int{}
	for _, res := range r.Sources {
		counts[res.Health]++
	}
	fmt.Fprintf(&b, "Run %s: %d sources (%d ok, %d stale, %d error)",
		r.RunID, len(r.Sources),
		counts[grants.HealthOK], counts[grants.HealthStale], counts[grants.HealthError])
	if r.Reconcile != nil {
		b.WriteString(". ")
		b.WriteString(r.Reconcile.Summary())
	}
	if r.DryRun {
		b.WriteString(" (dry run, nothing committed)")
	}
	return b.String()
}
