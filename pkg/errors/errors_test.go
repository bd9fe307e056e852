package errors_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/agentstation/fundingscape/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := pkgerrors.NewNotFoundError("grant", "cordis_bulk:101")
	assert.Equal(t, "grant with ID cordis_bulk:101 not found", err.Error())
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsNotFound(errors.Join(errors.New("lookup"), err)))
}

func TestValidationError(t *testing.T) {
	t.Run("full context", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Source:   "cordis_bulk",
			RecordID: "101",
			Field:    "start_date",
			Value:    "2024-13-01",
			Message:  "unparseable date",
		}
		assert.Equal(t, "cordis_bulk: validation failed for record 101 field start_date: unparseable date", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
		assert.False(t, pkgerrors.IsRejection(err))
	})

	t.Run("constructor", func(t *testing.T) {
		err := pkgerrors.NewValidationError("amount", "abc", "not a number")
		assert.Equal(t, "validation failed field amount: not a number", err.Error())
	})
}

func TestRejectionError(t *testing.T) {
	err := pkgerrors.NewRejectionError("openaire", "oaire_NSF_123", "title")
	assert.Equal(t, "openaire: record oaire_NSF_123 rejected: missing title", err.Error())
	assert.True(t, pkgerrors.IsRejection(err))
	assert.True(t, pkgerrors.IsValidationError(err))

	var target *pkgerrors.RejectionError
	require.True(t, errors.As(fmt.Errorf("normalize: %w", err), &target))
	assert.Equal(t, "title", target.Field)
}

func TestTransportError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		rateLimited bool
	}{
		{"server error", http.StatusBadGateway, false},
		{"too many requests", http.StatusTooManyRequests, true},
		{"network failure", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pkgerrors.NewTransportError("gepris", "https://gepris.dfg.de/x", tt.status, context.DeadlineExceeded)
			assert.True(t, pkgerrors.IsTransport(err))
			assert.True(t, pkgerrors.IsRetryable(err))
			assert.Equal(t, tt.rateLimited, pkgerrors.IsRateLimited(err))
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestNoDataIsNotRetryable(t *testing.T) {
	err := fmt.Errorf("page 3: %w", pkgerrors.ErrNoData)
	assert.True(t, pkgerrors.IsNoData(err))
	assert.False(t, pkgerrors.IsRetryable(err))
}

func TestConfigError(t *testing.T) {
	cause := errors.New("unknown source \"nih\"")
	err := pkgerrors.NewConfigError("sources", "unknown source", cause)
	assert.Equal(t, "configuration error in sources: unknown source", err.Error())
	assert.True(t, pkgerrors.IsConfigError(err))
	assert.ErrorIs(t, err, cause)

	bare := &pkgerrors.ConfigError{Message: "malformed"}
	assert.Equal(t, "configuration error: malformed", bare.Error())
}

func TestSourceError(t *testing.T) {
	cause := pkgerrors.NewTransportError("ft_portal", "https://example.test", 503, nil)
	err := pkgerrors.NewSourceError("ft_portal", cause)
	assert.Contains(t, err.Error(), "source ft_portal failed")
	assert.True(t, pkgerrors.IsTransport(err))
}

func TestWrapHelpers(t *testing.T) {
	assert.NoError(t, pkgerrors.WrapIO("read", "/tmp/x", nil))
	assert.NoError(t, pkgerrors.WrapResource("open", "store", "", nil))
	assert.NoError(t, pkgerrors.WrapParse("json", "page.json", nil))

	cause := errors.New("boom")

	var ioErr *pkgerrors.IOError
	require.True(t, errors.As(pkgerrors.WrapIO("write", "/tmp/x", cause), &ioErr))
	assert.Equal(t, "IO error during write of /tmp/x: boom", ioErr.Error())

	var resErr *pkgerrors.ResourceError
	require.True(t, errors.As(pkgerrors.WrapResource("commit", "store", "run-1", cause), &resErr))
	assert.Equal(t, "failed to commit store run-1: boom", resErr.Error())

	var parseErr *pkgerrors.ParseError
	require.True(t, errors.As(pkgerrors.WrapParse("csv", "project.csv", cause), &parseErr))
	assert.Equal(t, "parse error in csv file project.csv: boom", parseErr.Error())
	assert.ErrorIs(t, parseErr, cause)
}
