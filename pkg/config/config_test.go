package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/constants"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/sources"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fundingscape.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, constants.DefaultConcurrency, cfg.Pipeline.Concurrency)
	assert.Equal(t, 0.85, cfg.Dedup.SimilarityThreshold)
	assert.Equal(t, 90*24*time.Hour, cfg.Dedup.DateTolerance)
	assert.Equal(t, constants.DefaultScraperDelay, cfg.Source(sources.GEPRISID).Delay)
	assert.Equal(t, sources.IDs(), cfg.EnabledSources())
	assert.Equal(t, "manual", cfg.Priority[0])
}

func TestLoadFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeFile(t, `
pipeline:
  concurrency: 8
dedup:
  date_tolerance: 720h
priority: [cordis_bulk, openaire]
sources:
  gepris:
    enabled: false
  manual:
    url: file:///srv/fundingscape/calls.yaml
    options:
      kind: calls
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, constants.DefaultRejectionThreshold, cfg.Pipeline.RejectionThreshold)
	assert.Equal(t, 720*time.Hour, cfg.Dedup.DateTolerance)
	assert.Equal(t, []string{"cordis_bulk", "openaire"}, cfg.Priority)

	gepris := cfg.Source(sources.GEPRISID)
	assert.False(t, gepris.Enabled)
	assert.Equal(t, constants.DefaultScraperDelay, gepris.Delay, "unset keys keep their defaults")

	manual := cfg.Source(sources.ManualID)
	assert.True(t, manual.Enabled)
	assert.Equal(t, "file:///srv/fundingscape/calls.yaml", manual.URL)
	assert.Equal(t, map[string]string{"kind": "calls"}, manual.Options)

	enabled := cfg.EnabledSources()
	assert.NotContains(t, enabled, sources.GEPRISID)
	assert.Equal(t, []sources.ID{sources.CordisBulkID, sources.OpenAIREID}, enabled[:2])
}

func TestLoadEnvironment(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("FUNDINGSCAPE_PIPELINE_CONCURRENCY", "2")
	t.Setenv("FUNDINGSCAPE_SOURCES_GEPRIS_DELAY", "5s")
	t.Setenv("FUNDINGSCAPE_STORE_PATH", "~/state/f.db")
	path := writeFile(t, "pipeline:\n  concurrency: 8\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.Concurrency, "environment beats the file")
	assert.Equal(t, 5*time.Second, cfg.Source(sources.GEPRISID).Delay)
	assert.Equal(t, filepath.Join(home, "state", "f.db"), cfg.Store.Path)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultConcurrency, cfg.Pipeline.Concurrency)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"concurrency", func(c *config.Config) { c.Pipeline.Concurrency = 0 }, "concurrency"},
		{"rejection threshold", func(c *config.Config) { c.Pipeline.RejectionThreshold = 0 }, "rejection_threshold"},
		{"similarity", func(c *config.Config) { c.Dedup.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"amount tolerance", func(c *config.Config) { c.Dedup.AmountTolerance = -0.1 }, "amount_tolerance"},
		{"date tolerance", func(c *config.Config) { c.Dedup.DateTolerance = -time.Hour }, "date_tolerance"},
		{"retry", func(c *config.Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"unknown source", func(c *config.Config) { c.Sources["nih_reporter"] = config.SourceConfig{Enabled: true} }, `unknown source "nih_reporter"`},
		{"unknown priority", func(c *config.Config) { c.Priority = append(c.Priority, "nsf") }, `unknown source "nsf"`},
		{"negative delay", func(c *config.Config) {
			s := c.Sources["gepris"]
			s.Delay = -time.Second
			c.Sources["gepris"] = s
		}, "delay"},
		{"negative max records", func(c *config.Config) {
			s := c.Sources["openaire"]
			s.MaxRecords = -1
			c.Sources["openaire"] = s
		}, "max_records"},
		{"cache location", func(c *config.Config) { c.Cache.Location = "ftp://cache" }, "unsupported location"},
		{"store path", func(c *config.Config) { c.Store.Path = "" }, "path is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfigError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := config.Defaults()
	cfg.Pipeline.Concurrency = 0
	cfg.Priority = []string{"nsf"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "nsf")
}

func TestYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, config.Defaults().WriteYAML(&buf))
	assert.Contains(t, buf.String(), "concurrency: 4")
	assert.Contains(t, buf.String(), "similarity_threshold: 0.85")

	cfg, err := config.ParseYAML([]byte("pipeline:\n  concurrency: 3\nsources:\n  gepris:\n    enabled: true\n    delay: 4s\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.Concurrency)
	assert.Equal(t, 4*time.Second, cfg.Source(sources.GEPRISID).Delay)
	assert.Equal(t, constants.DefaultSimilarityThreshold, cfg.Dedup.SimilarityThreshold, "absent sections keep defaults")

	_, err = config.ParseYAML([]byte("pipeline: [unterminated"))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}
