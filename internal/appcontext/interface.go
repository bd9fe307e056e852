// Package appcontext provides the application context interface shared by
// every command, so commands depend on it rather than on the concrete App.
package appcontext

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/fundingscape"
)

// Interface defines what commands need from the application.
type Interface interface {
	// Fundingscape returns the engine, opening it on first use.
	Fundingscape(ctx context.Context) (fundingscape.Fundingscape, error)

	// Metrics returns the registry the engine records into.
	Metrics() prometheus.Gatherer

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the requested output format, empty for auto.
	OutputFormat() string

	// Out is where command results are written.
	Out() io.Writer

	Version() string
	Commit() string
	Date() string
	BuiltBy() string
}
