package grants_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/pkg/grants"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    grants.Date
		wantErr bool
	}{
		{"2024-01-01", grants.NewDate(2024, time.January, 1), false},
		{"2024-02-01T00:00:00Z", grants.NewDate(2024, time.February, 1), false},
		{"2026-12-31 23:59:59", grants.NewDate(2026, time.December, 31), false},
		{"", grants.Date{}, false},
		{"31/12/2026", grants.Date{}, true},
		{"2024-13-01", grants.Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := grants.ParseDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateArithmetic(t *testing.T) {
	start := grants.NewDate(2024, time.January, 1)
	end := grants.NewDate(2024, time.February, 1)

	assert.Equal(t, 31, start.DaysUntil(end))
	assert.Equal(t, -31, end.DaysUntil(start))
	assert.True(t, start.Before(end))
	assert.True(t, end.After(start))
	assert.Equal(t, end, start.AddDays(31))
	assert.Equal(t, "2024-03-01", grants.NewDate(2024, time.February, 30).String())
	assert.Equal(t, "", grants.Date{}.String())
	assert.True(t, grants.Date{}.AddDays(3).IsZero())
}

func TestDateJSON(t *testing.T) {
	type wrapper struct {
		Start grants.Date `json:"start,omitzero"`
	}

	data, err := json.Marshal(wrapper{Start: grants.NewDate(2025, time.June, 9)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2025-06-09"}`, string(data))

	data, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestParseMinor(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"500000", 50000000},
		{"1234.5", 123450},
		{"1234.567", 123457},
		{"0.005", 1},
		{"-0.005", -1},
		{"5e5", 50000000},
		{" 42 ", 4200},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := grants.ParseMinor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "abc", "1,234.00"} {
		_, err := grants.ParseMinor(bad)
		assert.Error(t, err, bad)
	}
}

func TestMoneyFormatting(t *testing.T) {
	assert.Equal(t, "500000", grants.NewMoney(500000, "EUR").Decimal())
	assert.Equal(t, "500000 EUR", grants.NewMoney(500000, "EUR").String())
	assert.Equal(t, "12.05", (&grants.Money{Minor: 1205}).String())
	assert.Equal(t, "-3.10", (&grants.Money{Minor: -310}).Decimal())

	var unknown *grants.Money
	assert.True(t, unknown.IsZero())
	assert.Equal(t, "", unknown.String())
	assert.True(t, unknown.Equal(nil))
	assert.False(t, unknown.Equal(grants.NewMoney(1, "EUR")))
	assert.True(t, grants.NewMoney(1, "EUR").Equal(&grants.Money{Minor: 100, Currency: "EUR", OriginalAmount: "1.00"}))
}

func TestCallStatusRank(t *testing.T) {
	assert.Less(t, grants.CallForthcoming.Rank(), grants.CallOpen.Rank())
	assert.Less(t, grants.CallOpen.Rank(), grants.CallUnderEvaluation.Rank())
	assert.Less(t, grants.CallUnderEvaluation.Rank(), grants.CallClosed.Rank())
	assert.False(t, grants.CallStatus("archived").IsValid())
}

func TestSourceIdentity(t *testing.T) {
	id := grants.ParseSourceIdentity("openaire:oaire_EC_101:x")
	assert.Equal(t, "openaire", id.Source)
	assert.Equal(t, "oaire_EC_101:x", id.LocalID)
	assert.Equal(t, "openaire:oaire_EC_101:x", id.String())

	a := grants.SourceIdentity{Source: "A", LocalID: "P1"}
	b := grants.SourceIdentity{Source: "B", LocalID: "X9"}
	assert.Negative(t, a.Compare(b))

	cg := grants.CanonicalGrant{ID: "c", Primary: a, Aliases: []grants.SourceIdentity{b}}
	assert.True(t, cg.Contains(b))
	assert.Equal(t, []grants.SourceIdentity{a, b}, cg.Members())
}

func TestFunderCategories(t *testing.T) {
	for _, c := range grants.FunderCategories() {
		assert.True(t, c.IsValid())
	}
	assert.False(t, grants.FunderCategory("eu").IsValid())
}
