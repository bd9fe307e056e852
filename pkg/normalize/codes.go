package normalize

import (
	"fmt"
	"strings"

	"github.com/agentstation/fundingscape/pkg/grants"
)

// countryAliases maps non-ISO codes some sources use.
var countryAliases = map[string]string{
	"UK": "GB",
	"EL": "GR",
}

// currencySymbols maps symbols to ISO 4217 codes. "$" is AUD because the
// dollar-denominated sources in scope are Australian.
var currencySymbols = map[string]string{
	"$":  "AUD",
	"A$": "AUD",
	"€":  "EUR",
	"£":  "GBP",
	"¥":  "JPY",
	"₣":  "CHF",
}

// symbolOrder lists currencySymbols longest first, so "A$" wins over "$".
var symbolOrder = []string{"A$", "$", "€", "£", "¥", "₣"}

// DefaultCurrency is assumed when an amount carries no currency.
const DefaultCurrency = "EUR"

// Country normalizes an ISO 3166-1 alpha-2 code. The empty string is valid
// and means unknown.
func Country(raw string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" {
		return "", nil
	}
	if alias, ok := countryAliases[c]; ok {
		c = alias
	}
	if !isUpperAlpha(c, 2) {
		return "", fmt.Errorf("country %q is not a two-letter code", raw)
	}
	return c, nil
}

// Currency normalizes a currency code or symbol. The empty string is
// returned unchanged.
func Currency(raw string) (string, error) {
	c := strings.TrimSpace(raw)
	if c == "" {
		return "", nil
	}
	if code, ok := currencySymbols[c]; ok {
		return code, nil
	}
	c = strings.ToUpper(c)
	if !isUpperAlpha(c, 3) {
		return "", fmt.Errorf("currency %q is not an ISO 4217 code", raw)
	}
	return c, nil
}

// Amount cleans a human-formatted number for grants.ParseMinor. Thousands
// separators are dropped; a lone comma followed by one or two digits is a
// decimal comma. A leading or trailing currency symbol is returned apart.
func Amount(raw string) (amount, symbol string) {
	s := strings.TrimSpace(raw)
	for _, sym := range symbolOrder {
		if rest, ok := strings.CutPrefix(s, sym); ok {
			s, symbol = strings.TrimSpace(rest), sym
			break
		}
		if rest, ok := strings.CutSuffix(s, sym); ok {
			s, symbol = strings.TrimSpace(rest), sym
			break
		}
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", "_", "", "'", "").Replace(s)

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			// 1.234.567,89
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	return s, symbol
}

// Money parses an amount and currency as a source reported them. An empty
// amount yields nil. A missing currency defaults to EUR. The raw strings
// are kept on the result.
func Money(rawAmount, rawCurrency string) (*grants.Money, error) {
	if strings.TrimSpace(rawAmount) == "" {
		return nil, nil
	}
	amount, symbol := Amount(rawAmount)
	minor, err := grants.ParseMinor(amount)
	if err != nil {
		return nil, err
	}

	m := &grants.Money{
		Minor:            minor,
		OriginalAmount:   strings.TrimSpace(rawAmount),
		OriginalCurrency: strings.TrimSpace(rawCurrency),
	}
	cur := rawCurrency
	if strings.TrimSpace(cur) == "" {
		cur = symbol
	}
	code, err := Currency(cur)
	if err != nil {
		return m, err
	}
	if code == "" {
		code = DefaultCurrency
	}
	m.Currency = code
	return m, nil
}

// GrantStatus maps a source status word to a grant status. ok is false for
// unrecognized non-empty input.
func GrantStatus(raw string) (status grants.GrantStatus, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", true
	case "active", "signed", "ongoing", "running", "funded":
		return grants.GrantActive, true
	case "completed", "closed", "finished", "ended", "abgeschlossen":
		return grants.GrantCompleted, true
	case "terminated", "cancelled", "canceled", "suspended":
		return grants.GrantTerminated, true
	}
	return "", false
}

// CallStatus maps a source status word to a call status.
func CallStatus(raw string) (status grants.CallStatus, ok bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	switch s {
	case "":
		return "", true
	case "open", "opened":
		return grants.CallOpen, true
	case "forthcoming", "upcoming", "planned":
		return grants.CallForthcoming, true
	case "closed", "expired":
		return grants.CallClosed, true
	case "under-evaluation", "evaluation", "underevaluation":
		return grants.CallUnderEvaluation, true
	}
	return "", false
}

func isUpperAlpha(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
