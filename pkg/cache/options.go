package cache

import (
	"time"

	"github.com/agentstation/fundingscape/pkg/constants"
	"github.com/agentstation/fundingscape/pkg/metrics"
)

type options struct {
	client    Doer
	userAgent string
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Cache.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		userAgent: constants.UserAgent,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		o.client = NewHTTPClient(constants.DefaultHTTPTimeout)
	}
	return o
}

// WithClient sets the HTTP client.
func WithClient(client Doer) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithUserAgent sets the User-Agent sent when a request has none.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithMetrics records fetch outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
