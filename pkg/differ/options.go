package differ

// Option is a functional option for configuring a Differ.
type Option func(*differ)

// WithIgnoredFields excludes tracked fields from comparison.
func WithIgnoredFields(fields ...string) Option {
	return func(d *differ) {
		for _, field := range fields {
			d.ignoreFields[field] = true
		}
	}
}
