package grants

import (
	"fmt"
	"math/big"
	"strings"
)

// Money is an amount in minor units (hundredths) of an ISO 4217 currency.
// The amount and currency exactly as the source reported them are kept
// alongside; no conversion between currencies ever happens.
type Money struct {
	Minor            int64  `json:"minor" yaml:"minor"`
	Currency         string `json:"currency,omitempty" yaml:"currency,omitempty"`
	OriginalAmount   string `json:"original_amount,omitempty" yaml:"original_amount,omitempty"`
	OriginalCurrency string `json:"original_currency,omitempty" yaml:"original_currency,omitempty"`
}

// NewMoney returns a Money of whole units in currency.
func NewMoney(units int64, currency string) *Money {
	return &Money{Minor: units * 100, Currency: currency}
}

// ParseMinor parses a decimal amount ("500000", "1234.5", "5e5") into minor
// units, rounding half away from zero.
func ParseMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("parse amount: empty")
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, fmt.Errorf("parse amount %q: not a decimal number", s)
	}
	r.Mul(r, big.NewRat(100, 1))

	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	// round half away from zero
	if new(big.Int).Mul(new(big.Int).Abs(rem), big.NewInt(2)).Cmp(den) >= 0 {
		if num.Sign() < 0 {
			quo.Sub(quo, big.NewInt(1))
		} else {
			quo.Add(quo, big.NewInt(1))
		}
	}
	if !quo.IsInt64() {
		return 0, fmt.Errorf("parse amount %q: out of range", s)
	}
	return quo.Int64(), nil
}

// IsZero reports whether the amount is unknown or zero.
func (m *Money) IsZero() bool {
	return m == nil || m.Minor == 0
}

// Decimal formats the amount without currency: "500000" or "1234.50".
func (m *Money) Decimal() string {
	if m == nil {
		return ""
	}
	sign := ""
	minor := m.Minor
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	if minor%100 == 0 {
		return fmt.Sprintf("%s%d", sign, minor/100)
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// String formats the amount with its currency.
func (m *Money) String() string {
	if m == nil {
		return ""
	}
	if m.Currency == "" {
		return m.Decimal()
	}
	return m.Decimal() + " " + m.Currency
}

// Equal compares amount and currency. Original strings are ignored.
func (m *Money) Equal(other *Money) bool {
	if m == nil || other == nil {
		return m == nil && other == nil
	}
	return m.Minor == other.Minor && m.Currency == other.Currency
}

// CurrencyCode returns the currency, or "" when m is nil.
func (m *Money) CurrencyCode() string {
	if m == nil {
		return ""
	}
	return m.Currency
}
