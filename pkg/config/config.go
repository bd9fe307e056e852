// Package config holds the explicit configuration of a fundingscape run.
//
// A Config is built once (Defaults, then Load) and passed to constructors.
// Nothing in the module reads configuration from package-level state.
package config

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/fundingscape/internal/blob"
	"github.com/agentstation/fundingscape/pkg/constants"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// Config is the full run configuration.
type Config struct {
	Cache    CacheConfig             `mapstructure:"cache" yaml:"cache"`
	Store    StoreConfig             `mapstructure:"store" yaml:"store"`
	Pipeline PipelineConfig          `mapstructure:"pipeline" yaml:"pipeline"`
	Retry    RetryConfig             `mapstructure:"retry" yaml:"retry"`
	Dedup    DedupConfig             `mapstructure:"dedup" yaml:"dedup"`
	Priority []string                `mapstructure:"priority" yaml:"priority"` // Highest trust first
	Sources  map[string]SourceConfig `mapstructure:"sources" yaml:"sources"`
	Metrics  MetricsConfig           `mapstructure:"metrics" yaml:"metrics"`
}

// CacheConfig locates the conditional cache.
type CacheConfig struct {
	Location string        `mapstructure:"location" yaml:"location"` // path | file:// | mem:// | s3://bucket/prefix
	S3       blob.S3Config `mapstructure:"s3" yaml:"s3"`
}

// StoreConfig locates the canonical store.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // ":memory:" for an in-memory store
}

// PipelineConfig bounds a run.
type PipelineConfig struct {
	Concurrency        int           `mapstructure:"concurrency" yaml:"concurrency"`
	RejectionThreshold float64       `mapstructure:"rejection_threshold" yaml:"rejection_threshold"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	UserAgent          string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// RetryConfig is the transport retry policy.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// DedupConfig holds the duplicate match thresholds.
type DedupConfig struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	AmountTolerance     float64       `mapstructure:"amount_tolerance" yaml:"amount_tolerance"`
	DateTolerance       time.Duration `mapstructure:"date_tolerance" yaml:"date_tolerance"`
}

// SourceConfig configures one connector.
type SourceConfig struct {
	Enabled    bool              `mapstructure:"enabled" yaml:"enabled"`
	Delay      time.Duration     `mapstructure:"delay" yaml:"delay"`             // Minimum gap between requests
	MaxRecords int               `mapstructure:"max_records" yaml:"max_records"` // 0 is unlimited
	URL        string            `mapstructure:"url" yaml:"url,omitempty"`       // Overrides the connector default
	Options    map[string]string `mapstructure:"options" yaml:"options,omitempty"`
}

// MetricsConfig controls the per-run metrics textfile.
type MetricsConfig struct {
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

// Defaults returns the documented default configuration.
func Defaults() *Config {
	priority := make([]string, 0, len(sources.IDs()))
	srcs := make(map[string]SourceConfig, len(sources.IDs()))
	for _, id := range sources.IDs() {
		priority = append(priority, id.String())
		srcs[id.String()] = SourceConfig{Enabled: true}
	}
	gepris := srcs[sources.GEPRISID.String()]
	gepris.Delay = constants.DefaultScraperDelay
	srcs[sources.GEPRISID.String()] = gepris
	openaire := srcs[sources.OpenAIREID.String()]
	openaire.Delay = constants.DefaultAPIDelay
	srcs[sources.OpenAIREID.String()] = openaire

	return &Config{
		Cache: CacheConfig{Location: constants.DefaultCachePath},
		Store: StoreConfig{Path: constants.DefaultStorePath},
		Pipeline: PipelineConfig{
			Concurrency:        constants.DefaultConcurrency,
			RejectionThreshold: constants.DefaultRejectionThreshold,
			HTTPTimeout:        constants.DefaultHTTPTimeout,
			UserAgent:          constants.UserAgent,
		},
		Retry: RetryConfig{
			MaxAttempts:     constants.MaxRetries,
			InitialInterval: constants.RetryBackoff,
			MaxInterval:     constants.MaxRetryBackoff,
		},
		Dedup: DedupConfig{
			SimilarityThreshold: constants.DefaultSimilarityThreshold,
			AmountTolerance:     constants.DefaultAmountTolerance,
			DateTolerance:       constants.DefaultDateTolerance,
		},
		Priority: priority,
		Sources:  srcs,
	}
}

// Source returns the settings of id. Unconfigured sources are disabled.
func (c *Config) Source(id sources.ID) SourceConfig {
	return c.Sources[id.String()]
}

// EnabledSources returns the enabled sources in priority order, then by name.
func (c *Config) EnabledSources() []sources.ID {
	var ids []sources.ID
	for name, s := range c.Sources {
		if s.Enabled {
			ids = append(ids, sources.ID(name))
		}
	}
	rank := func(id sources.ID) int {
		if i := slices.Index(c.Priority, id.String()); i >= 0 {
			return i
		}
		return len(c.Priority)
	}
	slices.SortFunc(ids, func(a, b sources.ID) int {
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra - rb
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return ids
}

// Validate reports every configuration problem, each as a *errors.ConfigError.
func (c *Config) Validate() error {
	var errs []error
	bad := func(component, format string, args ...any) {
		errs = append(errs, errors.NewConfigError(component, fmt.Sprintf(format, args...), nil))
	}
	fraction := func(component, name string, v float64) {
		if v <= 0 || v > 1 {
			bad(component, "%s must be in (0, 1], got %v", name, v)
		}
	}

	if _, err := blob.ParseLocation(c.Cache.Location); err != nil {
		errs = append(errs, err)
	}
	if c.Store.Path == "" {
		bad("store", "path is empty")
	}

	if c.Pipeline.Concurrency < 1 {
		bad("pipeline", "concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}
	fraction("pipeline", "rejection_threshold", c.Pipeline.RejectionThreshold)
	if c.Pipeline.HTTPTimeout < 0 {
		bad("pipeline", "http_timeout cannot be negative")
	}

	if c.Retry.MaxAttempts < 1 {
		bad("retry", "max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialInterval < 0 || c.Retry.MaxInterval < 0 {
		bad("retry", "intervals cannot be negative")
	}

	fraction("dedup", "similarity_threshold", c.Dedup.SimilarityThreshold)
	fraction("dedup", "amount_tolerance", c.Dedup.AmountTolerance)
	if c.Dedup.DateTolerance < 0 {
		bad("dedup", "date_tolerance cannot be negative")
	}

	for _, name := range c.Priority {
		if !sources.ID(name).IsValid() {
			bad("priority", "unknown source %q", name)
		}
	}
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		s := c.Sources[name]
		if !sources.ID(name).IsValid() {
			bad("sources", "unknown source %q", name)
			continue
		}
		if s.Delay < 0 {
			bad("sources", "%s: delay cannot be negative", name)
		}
		if s.MaxRecords < 0 {
			bad("sources", "%s: max_records cannot be negative", name)
		}
	}
	return errors.Join(errs...)
}

// WriteYAML writes c as a YAML document.
func (c *Config) WriteYAML(w io.Writer) error {
	data, err := yaml.MarshalWithOptions(c, yaml.Indent(2))
	if err != nil {
		return errors.WrapParse("yaml", "config", err)
	}
	_, err = w.Write(data)
	return err
}

// ParseYAML reads a YAML document over the defaults. It does not consult
// the environment; use Load for that.
func ParseYAML(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewConfigError("config", "parse yaml", errors.WrapParse("yaml", "config", err))
	}
	return cfg, nil
}
