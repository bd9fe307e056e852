package logging_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/pkg/logging"
)

func TestDefaultLogger(t *testing.T) {
	original := *logging.Default()
	t.Cleanup(func() { logging.SetDefault(original) })

	buf := &bytes.Buffer{}
	logging.SetDefault(zerolog.New(buf).Level(zerolog.DebugLevel))

	logging.Info().Msg("info message")
	logging.Debug().Msg("debug message")

	assert.Contains(t, buf.String(), "info message")
	assert.Contains(t, buf.String(), "debug message")
}

func TestContextFields(t *testing.T) {
	tl := logging.NewTestLogger(t)

	ctx := logging.WithLogger(context.Background(), tl.Logger)
	ctx = logging.WithRun(ctx, "run-42")
	ctx = logging.WithSource(ctx, "cordis_bulk")
	ctx = logging.WithOperation(ctx, "normalize")
	ctx = logging.WithError(ctx, errors.New("bad row"))
	ctx = logging.WithFields(ctx, map[string]any{"records": 7})

	logging.FromContext(ctx).Info().Msg("source finished")

	tl.AssertContains(t, `"run_id":"run-42"`)
	tl.AssertContains(t, `"source":"cordis_bulk"`)
	tl.AssertContains(t, `"operation":"normalize"`)
	tl.AssertContains(t, `"error":"bad row"`)
	tl.AssertContains(t, `"records":7`)
	require.Len(t, tl.Lines(), 1)
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, logging.Default(), logging.FromContext(context.Background()))
	assert.Same(t, logging.Default(), logging.Ctx(context.TODO()))
}

func TestWithErrorNil(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, logging.WithError(ctx, nil))
}

func TestNewLoggerFromConfig(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	tests := []struct {
		name     string
		level    string
		logDebug bool
	}{
		{"info hides debug", "info", false},
		{"debug shows debug", "debug", true},
		{"unknown level falls back to info", "chatty", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logging.NewLoggerFromConfig(&logging.Config{
				Level:  tt.level,
				Format: "json",
				Output: "discard",
			})
			assert.Equal(t, tt.logDebug, logger.Debug().Enabled())
		})
	}
}

func TestConfigFieldsAreAttached(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	cfg := logging.DefaultConfig()
	cfg.Output = "stdout"
	cfg.Format = "json"
	cfg.Fields = map[string]any{"component": "pipeline"}
	logger := logging.NewLoggerFromConfig(cfg)

	buf := &bytes.Buffer{}
	logger = logger.Output(buf)
	logger.Info().Msg("hello")
	assert.True(t, strings.Contains(buf.String(), `"component":"pipeline"`))
}
