package appcontext

import (
	"context"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/fundingscape"
)

var _ Interface = (*Mock)(nil)

// Mock provides a mock implementation of Interface for testing.
// A nil function field yields a default or zero value.
type Mock struct {
	FundingscapeFunc func(ctx context.Context) (fundingscape.Fundingscape, error)
	Registry         *prometheus.Registry
	LoggerFunc       func() *zerolog.Logger
	Format           string
	Writer           io.Writer
	VersionFunc      func() string
}

// Fundingscape returns the engine from the mock function or nil.
func (m *Mock) Fundingscape(ctx context.Context) (fundingscape.Fundingscape, error) {
	if m.FundingscapeFunc != nil {
		return m.FundingscapeFunc(ctx)
	}
	return nil, nil
}

// Metrics returns Registry, or an empty registry.
func (m *Mock) Metrics() prometheus.Gatherer {
	if m.Registry != nil {
		return m.Registry
	}
	return prometheus.NewRegistry()
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns Format.
func (m *Mock) OutputFormat() string {
	return m.Format
}

// Out returns Writer, or stdout.
func (m *Mock) Out() io.Writer {
	if m.Writer != nil {
		return m.Writer
	}
	return os.Stdout
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns "unknown".
func (m *Mock) Commit() string { return "unknown" }

// Date returns "unknown".
func (m *Mock) Date() string { return "unknown" }

// BuiltBy returns "test".
func (m *Mock) BuiltBy() string { return "test" }
