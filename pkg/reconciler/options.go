package reconciler

import (
	"time"

	"github.com/agentstation/fundingscape/pkg/authority"
	"github.com/agentstation/fundingscape/pkg/constants"
	"github.com/agentstation/fundingscape/pkg/differ"
	"github.com/agentstation/fundingscape/pkg/errors"
)

// Default match thresholds.
const (
	DefaultSimilarityThreshold = constants.DefaultSimilarityThreshold
	DefaultAmountTolerance     = constants.DefaultAmountTolerance
	DefaultDateTolerance       = constants.DefaultDateTolerance
)

// options configures a reconciler.
type options struct {
	ranking             *authority.Ranking
	differ              differ.Differ
	matcher             Matcher
	similarityThreshold float64
	amountTolerance     float64
	dateTolerance       time.Duration
	now                 func() time.Time
}

func defaultOptions() *options {
	return &options{
		ranking:             authority.Default(),
		differ:              differ.New(),
		similarityThreshold: DefaultSimilarityThreshold,
		amountTolerance:     DefaultAmountTolerance,
		dateTolerance:       DefaultDateTolerance,
		now:                 time.Now,
	}
}

// Option is a function that configures a Reconciler.
type Option func(*options) error

func (options *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if options.matcher == nil {
		options.matcher = NewRuleMatcher(options.similarityThreshold, options.amountTolerance, options.dateTolerance)
	}
	return options, nil
}

// newOptions returns reconciler options with default values.
func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

// WithRanking sets the source priority used to pick cluster primaries.
func WithRanking(ranking *authority.Ranking) Option {
	return func(o *options) error {
		if ranking == nil {
			return &errors.ValidationError{Field: "ranking", Message: "cannot be nil"}
		}
		o.ranking = ranking
		return nil
	}
}

// WithPriority is WithRanking for a plain priority list.
func WithPriority(priority ...string) Option {
	return WithRanking(authority.New(priority))
}

// WithDiffer sets the field differ.
func WithDiffer(d differ.Differ) Option {
	return func(o *options) error {
		if d == nil {
			return &errors.ValidationError{Field: "differ", Message: "cannot be nil"}
		}
		o.differ = d
		return nil
	}
}

// WithMatcher replaces the rule matcher. The threshold options are then unused.
func WithMatcher(m Matcher) Option {
	return func(o *options) error {
		if m == nil {
			return &errors.ValidationError{Field: "matcher", Message: "cannot be nil"}
		}
		o.matcher = m
		return nil
	}
}

// WithSimilarityThreshold sets the minimum title similarity, in (0, 1].
func WithSimilarityThreshold(threshold float64) Option {
	return func(o *options) error {
		if threshold <= 0 || threshold > 1 {
			return &errors.ValidationError{Field: "similarity_threshold", Value: threshold, Message: "must be in (0, 1]"}
		}
		o.similarityThreshold = threshold
		return nil
	}
}

// WithAmountTolerance sets the relative amount tolerance, in (0, 1].
func WithAmountTolerance(tolerance float64) Option {
	return func(o *options) error {
		if tolerance <= 0 || tolerance > 1 {
			return &errors.ValidationError{Field: "amount_tolerance", Value: tolerance, Message: "must be in (0, 1]"}
		}
		o.amountTolerance = tolerance
		return nil
	}
}

// WithDateTolerance sets the largest gap between matching date ranges.
func WithDateTolerance(tolerance time.Duration) Option {
	return func(o *options) error {
		if tolerance < 0 {
			return &errors.ValidationError{Field: "date_tolerance", Value: tolerance, Message: "cannot be negative"}
		}
		o.dateTolerance = tolerance
		return nil
	}
}

// WithClock sets the clock used for detection timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return &errors.ValidationError{Field: "clock", Message: "cannot be nil"}
		}
		o.now = now
		return nil
	}
}
