package money

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 currency code restricted to the set the platform supports.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	TRY Currency = "TRY"
)

var supportedCurrencies = map[Currency]struct{}{
	USD: {},
	EUR: {},
	GBP: {},
	TRY: {},
}

// ParseCurrency validates and normalizes a currency code.
func ParseCurrency(code string) (Currency, error) {
	normalized := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if len(normalized) != 3 {
		return "", fmt.Errorf("currency code must be exactly 3 characters: %q", code)
	}
	if _, ok := supportedCurrencies[normalized]; !ok {
		return "", fmt.Errorf("unsupported currency: %q", code)
	}
	return normalized, nil
}

func (c Currency) String() string {
	return string(c)
}
