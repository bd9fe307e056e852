// Package metrics holds the Prometheus collectors for pipeline runs. A nil
// *Metrics is valid and records nothing, so components take it optionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fundingscape"

// Fetch outcomes recorded by the conditional cache.
const (
	OutcomeMiss        = "miss"         // downloaded, bytes differ from the stored payload
	OutcomeHit         = "hit"          // downloaded, bytes identical to the stored payload
	OutcomeNotModified = "not_modified" // 304, stored payload served
	OutcomeNoData      = "no_data"
	OutcomeError       = "error"
)

// Metrics is the set of collectors for one registry.
type Metrics struct {
	Fetches     *prometheus.CounterVec
	Records     *prometheus.CounterVec
	SourceState *prometheus.GaugeVec
	Changes     *prometheus.CounterVec
	Clusters    prometheus.Gauge
	RunDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetches_total",
			Help:      "Conditional fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "records_total",
			Help:      "Records seen per source by stage (in, normalized, rejected).",
		}, []string{"source", "stage"}),
		SourceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "health",
			Help:      "1 for the health state of each source's last run.",
		}, []string{"source", "health"}),
		Changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "changes_total",
			Help:      "Change-log entries appended, by kind.",
		}, []string{"kind"}),
		Clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "canonical_grants",
			Help:      "Canonical grants after the last reconciliation.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Fetches, m.Records, m.SourceState, m.Changes, m.Clusters, m.RunDuration)
	}
	return m
}

// ObserveFetch counts one cache fetch.
func (m *Metrics) ObserveFetch(source, outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(source, outcome).Inc()
}

// ObserveRecords adds per-stage record counts for a source.
func (m *Metrics) ObserveRecords(source string, in, normalized, rejected int) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(source, "in").Add(float64(in))
	m.Records.WithLabelValues(source, "normalized").Add(float64(normalized))
	m.Records.WithLabelValues(source, "rejected").Add(float64(rejected))
}

// SetHealth marks health as the current state of source.
func (m *Metrics) SetHealth(source string, health string, all []string) {
	if m == nil {
		return
	}
	for _, h := range all {
		v := 0.0
		if h == health {
			v = 1
		}
		m.SourceState.WithLabelValues(source, h).Set(v)
	}
}

// ObserveChange counts one appended change-log entry.
func (m *Metrics) ObserveChange(kind string) {
	if m == nil {
		return
	}
	m.Changes.WithLabelValues(kind).Inc()
}

// SetClusters records the canonical grant count.
func (m *Metrics) SetClusters(n int) {
	if m == nil {
		return
	}
	m.Clusters.Set(float64(n))
}

// ObserveRun records a run's duration.
func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}

// WriteTextfile writes every metric in g to path in the node-exporter
// textfile format, for scheduled runs that exit before a scrape.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
