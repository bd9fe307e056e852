// Package constants provides shared constants used throughout the fundingscape codebase.
// Defaults here seed config.Defaults; nothing reads them as ambient configuration.
package constants

import "time"

// Timeout constants
const (
	// DefaultHTTPTimeout bounds a single upstream request. Bulk dumps are large.
	DefaultHTTPTimeout = 5 * time.Minute

	// RunTimeout is the default ceiling for a whole pipeline run from the CLI
	RunTimeout = 2 * time.Hour

	// ShutdownTimeout is how long the CLI waits for cleanup after an error
	ShutdownTimeout = 5 * time.Second
)

// Retry constants
const (
	// MaxRetries is the default number of attempts per upstream request
	MaxRetries = 3

	// RetryBackoff is the initial backoff between attempts
	RetryBackoff = 500 * time.Millisecond

	// MaxRetryBackoff caps the backoff between attempts
	MaxRetryBackoff = 10 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the permission for created directories (rwxr-x---)
	DirPermissions = 0o750

	// FilePermissions is the permission for created files (rw-r--r--)
	FilePermissions = 0o644
)

// Pipeline defaults
const (
	// DefaultConcurrency is the number of connectors run in parallel
	DefaultConcurrency = 4

	// DefaultRejectionThreshold is the rejected/attempted ratio above which a source is stale
	DefaultRejectionThreshold = 0.2

	// DefaultScraperDelay is the minimum delay between requests to HTML sources
	DefaultScraperDelay = 2500 * time.Millisecond

	// DefaultAPIDelay is the minimum delay between requests to paged JSON APIs
	DefaultAPIDelay = time.Second
)

// Dedup defaults
const (
	// DefaultSimilarityThreshold is the minimum bigram Dice similarity of two titles
	DefaultSimilarityThreshold = 0.85

	// DefaultAmountTolerance is the relative difference two amounts may have
	DefaultAmountTolerance = 0.05

	// DefaultDateTolerance is the gap allowed between two non-overlapping date ranges
	DefaultDateTolerance = 90 * 24 * time.Hour
)

// Path constants
const (
	// DefaultHome is the default directory for fundingscape state
	DefaultHome = "~/.fundingscape"

	// DefaultCachePath is the default cache location
	DefaultCachePath = "~/.fundingscape/cache"

	// DefaultStorePath is the default SQLite database path
	DefaultStorePath = "~/.fundingscape/fundingscape.db"

	// DefaultManualPath is the default curated YAML file
	DefaultManualPath = "manual/calls.yaml"
)

// UserAgent is sent with every upstream request.
const UserAgent = "fundingscape/1.0 (+https://github.com/agentstation/fundingscape)"
