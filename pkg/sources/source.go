// Package sources defines the connector contract: how an external funding
// source turns fetched payloads into raw records, and how each raw record is
// normalized into a Shape the record normalizer understands.
//
// A connector never writes anywhere. It reads through a Fetcher, which owns
// rate limiting, retries and the conditional cache, and yields records
// lazily so that one malformed record never aborts the source.
//
// Example usage:
//
//	for rec, err := range conn.Connect(ctx, fetcher) {
//	    if err != nil {
//	        // fetch-level failure, already counted by the fetcher
//	        continue
//	    }
//	    shape, problems := conn.Normalize(rec)
//	    ...
//	}
package sources

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/agentstation/fundingscape/pkg/cache"
)

// Connector is implemented once per external source.
type Connector interface {
	// ID returns the stable source name used in source identities.
	ID() ID

	// Name returns a human-readable name.
	Name() string

	// Connect yields raw records for this run. Fetch failures are yielded as
	// errors; the sequence continues when further progress is possible.
	Connect(ctx context.Context, f Fetcher) iter.Seq2[RawRecord, error]

	// Normalize maps one raw record to a Shape. It performs no I/O. Field
	// problems are returned as *errors.ValidationError with the field left
	// empty; a missing required field is returned as *errors.RejectionError.
	Normalize(rec RawRecord) (Shape, []error)
}

// Fetcher is the connector's only path to the network.
type Fetcher interface {
	Fetch(ctx context.Context, req cache.Request) (*cache.Result, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req cache.Request) (*cache.Result, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req cache.Request) (*cache.Result, error) {
	return f(ctx, req)
}

// RawRecord is one opaque, source-specific record: a CSV row, a JSON object,
// a scraped page. Locator says where it came from, for diagnostics.
type RawRecord struct {
	Locator string
	Value   any
}

// ID represents the identifier of a data source.
type ID string

// String returns the string representation of a source name.
func (id ID) String() string {
	return string(id)
}

// Known source names.
const (
	ManualID       ID = "manual"
	CordisBulkID   ID = "cordis_bulk"
	OpenAIREBulkID ID = "openaire_bulk"
	FTPortalID     ID = "ft_portal"
	OpenAIREID     ID = "openaire"
	GEPRISID       ID = "gepris"
)

// IDs returns every known source, in default priority order.
func IDs() []ID {
	return []ID{
		ManualID,
		CordisBulkID,
		OpenAIREBulkID,
		FTPortalID,
		OpenAIREID,
		GEPRISID,
	}
}

// IsValid reports whether id names a known source.
func (id ID) IsValid() bool {
	return slices.Contains(IDs(), id)
}

// Sources is a thread-safe container of connectors keyed by ID.
type Sources struct {
	mu      sync.RWMutex
	sources map[ID]Connector
}

// NewSources creates a container holding conns.
func NewSources(conns ...Connector) *Sources {
	s := &Sources{sources: make(map[ID]Connector, len(conns))}
	for _, c := range conns {
		s.sources[c.ID()] = c
	}
	return s
}

// Get returns a connector by ID.
func (s *Sources) Get(id ID) (Connector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, found := s.sources[id]
	return c, found
}

// Set adds or replaces a connector.
func (s *Sources) Set(c Connector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[c.ID()] = c
}

// Len returns the number of connectors.
func (s *Sources) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

// List returns the connectors sorted by ID.
func (s *Sources) List() []Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Connector, 0, len(s.sources))
	for _, c := range s.sources {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Connector) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return out
}

// IDs returns the IDs of all connectors, sorted.
func (s *Sources) IDs() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]ID, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
