/**
 * @description
 * This package defines the monetary value types shared by both services:
 * Money (a decimal amount paired with a supported currency), Currency, and IBAN.
 * Amounts use shopspring/decimal so that reserve/release round trips are
 * decimal-exact with no floating-point drift.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Arbitrary-precision decimal arithmetic.
 */

package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount   = errors.New("amount cannot be negative")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeResult   = errors.New("result cannot be negative")
)

// Money is an immutable amount of a single currency. The zero value is not
// valid; construct through New or Zero.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// New builds a Money value. Negative amounts are a contract error, not a
// business failure.
func New(amount decimal.Decimal, currency Currency) (Money, error) {
	if _, ok := supportedCurrencies[currency]; !ok {
		return Money{}, fmt.Errorf("unsupported currency: %q", currency)
	}
	if amount.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	return Money{amount: amount, currency: currency}, nil
}

// Zero returns a zero amount in the given currency.
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Currency() Currency {
	return m.currency
}

func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Add returns m + other. Mixing currencies is a contract error.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other. A negative result is a contract error because
// balances can never go below zero.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, ErrNegativeResult
	}
	return Money{amount: result, currency: m.currency}, nil
}

// LessThan reports m < other for same-currency values.
func (m Money) LessThan(other Money) (bool, error) {
	if m.currency != other.currency {
		return false, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return m.amount.LessThan(other.amount), nil
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}
