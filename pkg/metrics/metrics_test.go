package metrics_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/pkg/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch("gepris", metrics.OutcomeMiss)
		m.ObserveRecords("gepris", 1, 1, 0)
		m.SetHealth("gepris", "ok", []string{"ok"})
		m.ObserveChange("new")
		m.SetClusters(3)
		m.ObserveRun(time.Second)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveFetch("openaire", metrics.OutcomeNotModified)
	m.ObserveFetch("openaire", metrics.OutcomeNotModified)
	m.ObserveRecords("openaire", 10, 6, 4)
	m.SetHealth("openaire", "stale", []string{"ok", "error", "stale"})
	m.ObserveChange("updated")
	m.SetClusters(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fetches.WithLabelValues("openaire", metrics.OutcomeNotModified)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Records.WithLabelValues("openaire", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceState.WithLabelValues("openaire", "stale")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SourceState.WithLabelValues("openaire", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Changes.WithLabelValues("updated")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Clusters))
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveChange("new")

	path := filepath.Join(t.TempDir(), "fundingscape.prom")
	require.NoError(t, metrics.WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `fundingscape_reconciler_changes_total{kind="new"} 1`)
}
