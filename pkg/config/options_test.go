package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
)

func TestOptionReader(t *testing.T) {
	s := config.SourceConfig{Options: map[string]string{
		"keywords":  " quantum, ,photonics ",
		"page_size": "25",
		"details":   "false",
	}}
	o := s.OptionReader("openaire")

	assert.Equal(t, []string{"quantum", "photonics"}, o.List("keywords"))
	assert.Nil(t, o.List("funders"))
	assert.Equal(t, 25, o.PositiveInt("page_size", 100))
	assert.Equal(t, 50, o.PositiveInt("max_pages", 50))
	assert.False(t, o.Bool("details", true))
	assert.NoError(t, o.Err())
}

func TestOptionReaderRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]string
		read    func(*config.OptionReader)
		want    string
	}{
		{
			name:    "non numeric",
			options: map[string]string{"page_size": "lots"},
			read:    func(o *config.OptionReader) { assert.Equal(t, 100, o.PositiveInt("page_size", 100)) },
			want:    `option page_size must be a positive integer, got "lots"`,
		},
		{
			name:    "zero",
			options: map[string]string{"max_pages": "0"},
			read:    func(o *config.OptionReader) { o.PositiveInt("max_pages", 50) },
			want:    "option max_pages must be a positive integer",
		},
		{
			name:    "bad bool",
			options: map[string]string{"details": "sometimes"},
			read:    func(o *config.OptionReader) { assert.True(t, o.Bool("details", true)) },
			want:    "option details must be true or false",
		},
		{
			name:    "unknown key",
			options: map[string]string{"bogus_key": "x"},
			read:    func(*config.OptionReader) {},
			want:    `unknown option "bogus_key"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := config.SourceConfig{Options: tt.options}.OptionReader("openaire")
			tt.read(o)
			err := o.Err()
			require.Error(t, err)
			assert.True(t, errors.IsConfigError(err))
			assert.Contains(t, err.Error(), "openaire: ")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
