package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/agentstation/fundingscape/pkg/errors"
)

// OptionReader reads the free-form options of one source. Each read marks
// its key as known; Err reports malformed values and any key never read.
type OptionReader struct {
	source string
	values map[string]string
	known  map[string]bool
	errs   []error
}

// OptionReader starts reading the options of source.
func (s SourceConfig) OptionReader(source string) *OptionReader {
	return &OptionReader{source: source, values: s.Options, known: map[string]bool{}}
}

// String returns the trimmed value of key and whether it was set.
func (o *OptionReader) String(key string) (string, bool) {
	o.known[key] = true
	v, ok := o.values[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// List splits a comma separated value, dropping blanks. It returns nil
// when key is unset.
func (o *OptionReader) List(key string) []string {
	v, ok := o.String(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// PositiveInt parses key as an integer above zero, returning def when unset.
func (o *OptionReader) PositiveInt(key string, def int) int {
	v, ok := o.String(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		o.Invalid(key, "must be a positive integer, got %q", v)
		return def
	}
	return n
}

// Bool parses key as a boolean, returning def when unset.
func (o *OptionReader) Bool(key string, def bool) bool {
	v, ok := o.String(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		o.Invalid(key, "must be true or false, got %q", v)
		return def
	}
	return b
}

// Invalid records a problem with the value of key.
func (o *OptionReader) Invalid(key, format string, args ...any) {
	o.known[key] = true
	o.errs = append(o.errs, errors.NewConfigError("sources",
		fmt.Sprintf("%s: option %s %s", o.source, key, fmt.Sprintf(format, args...)), nil))
}

// Err returns every recorded problem plus one per unknown key, or nil.
func (o *OptionReader) Err() error {
	errs := slices.Clone(o.errs)
	keys := make([]string, 0, len(o.values))
	for key := range o.values {
		if !o.known[key] {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	for _, key := range keys {
		errs = append(errs, errors.NewConfigError("sources",
			fmt.Sprintf("%s: unknown option %q", o.source, key), nil))
	}
	return errors.Join(errs...)
}
