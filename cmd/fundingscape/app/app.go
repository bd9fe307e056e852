// Package app provides the application context and dependency management
// for the fundingscape CLI: configuration, logging, the metrics registry
// and the lazily opened engine.
package app

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/fundingscape"
	"github.com/agentstation/fundingscape/internal/appcontext"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
)

var _ appcontext.Interface = (*App)(nil)

// App represents the fundingscape application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	out    io.Writer

	// Engine configuration; loaded from config.ConfigFile on first use
	// unless set by an option.
	engine   *config.Config
	registry *prometheus.Registry

	mu           sync.Mutex
	fundingscape fundingscape.Fundingscape
	fsOptions    []fundingscape.Option
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version:  version,
		commit:   commit,
		date:     date,
		builtBy:  builtBy,
		out:      os.Stdout,
		registry: prometheus.NewRegistry(),
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = cfg

	logger := NewLogger(cfg)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the requested output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Out returns where command results are written.
func (a *App) Out() io.Writer {
	return a.out
}

// Metrics returns the registry every run records into.
func (a *App) Metrics() prometheus.Gatherer {
	return a.registry
}

// Fundingscape returns the engine, opening it on first use. Only one
// instance is created.
func (a *App) Fundingscape(ctx context.Context) (fundingscape.Fundingscape, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fundingscape != nil {
		return a.fundingscape, nil
	}

	engine := a.engine
	if engine == nil {
		cfg, err := config.Load(a.config.ConfigFile)
		if err != nil {
			return nil, err
		}
		engine = cfg
	}

	opts := append([]fundingscape.Option{fundingscape.WithMetricsRegistry(a.registry)}, a.fsOptions...)
	fs, err := fundingscape.New(ctx, engine, opts...)
	if err != nil {
		return nil, errors.WrapResource("create", "fundingscape", "", err)
	}
	a.logger.Debug().
		Str("store", engine.Store.Path).
		Str("cache", engine.Cache.Location).
		Msg("Opened fundingscape")

	a.fundingscape = fs
	return fs, nil
}

// Shutdown releases the engine if it was opened.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fundingscape == nil {
		return nil
	}
	err := a.fundingscape.Close()
	a.fundingscape = nil
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to close fundingscape during shutdown")
	}
	return err
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithEngineConfig sets the engine configuration instead of loading it.
func WithEngineConfig(cfg *config.Config) Option {
	return func(a *App) error {
		a.engine = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithOutput sets where command results are written.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}

// WithFundingscapeOptions adds options used when the engine is opened.
func WithFundingscapeOptions(opts ...fundingscape.Option) Option {
	return func(a *App) error {
		a.fsOptions = append(a.fsOptions, opts...)
		return nil
	}
}

// WithFundingscape sets a custom engine (useful for testing).
func WithFundingscape(fs fundingscape.Fundingscape) Option {
	return func(a *App) error {
		a.fundingscape = fs
		return nil
	}
}
