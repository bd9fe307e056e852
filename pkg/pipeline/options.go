package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/fundingscape/pkg/metrics"
	"github.com/agentstation/fundingscape/pkg/normalize"
	"github.com/agentstation/fundingscape/pkg/reconciler"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records run metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithReconciler replaces the reconciler built from the configuration.
func WithReconciler(r reconciler.Reconciler) Option {
	return func(p *Pipeline) {
		p.reconciler = r
	}
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(p *Pipeline) {
		p.normalizer = n
	}
}

// WithClock replaces time.Now for run bookkeeping and, unless a normalizer
// or reconciler is supplied, for those too.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(next func() string) Option {
	return func(p *Pipeline) {
		p.newRunID = next
	}
}

// newRunID returns a time-ordered UUID so that run ids sort by start time.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RunOptions select what one Run does.
type RunOptions struct {
	Sources     []string // Empty means every enabled source
	DryRun      bool     // Plan everything, commit nothing
	MaxRecords  int      // Overrides every source's max_records when > 0
	Concurrency int      // Overrides pipeline.concurrency when > 0
}
