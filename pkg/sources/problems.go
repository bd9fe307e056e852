package sources

import (
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
)

// Problems collects what goes wrong while a connector maps one record.
// Field problems leave the field empty; a missing required field rejects
// the record.
type Problems struct {
	Source   ID
	RecordID string
	errs     []error
}

// NewProblems starts a collector for one record.
func NewProblems(source ID, recordID string) *Problems {
	return &Problems{Source: source, RecordID: recordID}
}

// Add records a field problem.
func (p *Problems) Add(field string, value any, msg string) {
	p.errs = append(p.errs, &errors.ValidationError{
		Source:   p.Source.String(),
		RecordID: p.RecordID,
		Field:    field,
		Value:    value,
		Message:  msg,
	})
}

// Require rejects the record when value is blank.
func (p *Problems) Require(field, value string) bool {
	if strings.TrimSpace(value) != "" {
		return true
	}
	p.errs = append(p.errs, errors.NewRejectionError(p.Source.String(), p.RecordID, field))
	return false
}

// Date parses an ISO date, recording a problem and returning the zero
// Date when raw is not one.
func (p *Problems) Date(field, raw string) grants.Date {
	d, err := grants.ParseDate(raw)
	if err != nil {
		p.Add(field, raw, err.Error())
		return grants.Date{}
	}
	return d
}

// EpochMillis converts a Unix timestamp in milliseconds to a UTC date.
func (p *Problems) EpochMillis(field string, raw any) grants.Date {
	var ms int64
	switch v := raw.(type) {
	case nil:
		return grants.Date{}
	case float64:
		ms = int64(v)
	case int64:
		ms = v
	case string:
		if strings.TrimSpace(v) == "" {
			return grants.Date{}
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			p.Add(field, raw, "not an epoch timestamp")
			return grants.Date{}
		}
		ms = n
	default:
		p.Add(field, raw, "not an epoch timestamp")
		return grants.Date{}
	}
	return grants.DateOf(time.UnixMilli(ms).UTC())
}

// Errors returns the collected problems.
func (p *Problems) Errors() []error {
	return p.errs
}
