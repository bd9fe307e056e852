package fundingscape

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentstation/fundingscape/internal/blob"
	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/sources"
	"github.com/agentstation/fundingscape/pkg/store"
)

// options holds what New does not take from the configuration.
type options struct {
	store      store.Store
	blobs      blob.Store
	httpClient cache.Doer
	connectors *sources.Sources
	registerer prometheus.Registerer
	now        func() time.Time
	runIDs     func() string
}

// Option is a function that configures a Fundingscape instance.
type Option func(*options) error

func newOptions(opts ...Option) (*options, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithStore uses st instead of opening store.path. The caller closes it.
func WithStore(st store.Store) Option {
	return func(o *options) error {
		if st == nil {
			return &errors.ValidationError{Field: "store", Message: "store is nil"}
		}
		o.store = st
		return nil
	}
}

// WithBlobStore backs the cache with b instead of cache.location.
func WithBlobStore(b blob.Store) Option {
	return func(o *options) error {
		if b == nil {
			return &errors.ValidationError{Field: "blobs", Message: "blob store is nil"}
		}
		o.blobs = b
		return nil
	}
}

// WithHTTPClient sends upstream requests through client.
func WithHTTPClient(client cache.Doer) Option {
	return func(o *options) error {
		o.httpClient = client
		return nil
	}
}

// WithConnectors replaces the registered connectors.
func WithConnectors(conns ...sources.Connector) Option {
	return func(o *options) error {
		o.connectors = sources.NewSources(conns...)
		return nil
	}
}

// WithMetricsRegistry registers the pipeline and cache collectors with reg.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		o.now = now
		return nil
	}
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(next func() string) Option {
	return func(o *options) error {
		o.runIDs = next
		return nil
	}
}
