package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func try(t *testing.T, amount string) Money {
	t.Helper()
	m, err := New(decimal.RequireFromString(amount), TRY)
	require.NoError(t, err)
	return m
}

func TestNew_RejectsNegativeAmount(t *testing.T) {
	_, err := New(decimal.NewFromInt(-1), TRY)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestNew_RejectsUnsupportedCurrency(t *testing.T) {
	_, err := New(decimal.NewFromInt(10), Currency("XXX"))
	assert.Error(t, err)
}

func TestAdd_MixedCurrencyIsContractError(t *testing.T) {
	usd, err := New(decimal.NewFromInt(5), USD)
	require.NoError(t, err)

	_, err = try(t, "10").Add(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestSub_NegativeResultRejected(t *testing.T) {
	_, err := try(t, "100").Sub(try(t, "100.01"))
	assert.ErrorIs(t, err, ErrNegativeResult)
}

func TestSubThenAdd_RestoresExactly(t *testing.T) {
	// Reserve-then-release must be decimal-exact with no drift.
	balance := try(t, "1000.37")
	amount := try(t, "500.19")

	reserved, err := balance.Sub(amount)
	require.NoError(t, err)

	restored, err := reserved.Add(amount)
	require.NoError(t, err)
	assert.True(t, restored.Equal(balance), "expected %s, got %s", balance, restored)
}

func TestLessThan(t *testing.T) {
	less, err := try(t, "99.99").LessThan(try(t, "100"))
	require.NoError(t, err)
	assert.True(t, less)

	less, err = try(t, "100").LessThan(try(t, "100"))
	require.NoError(t, err)
	assert.False(t, less)
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" try ")
	require.NoError(t, err)
	assert.Equal(t, TRY, c)

	_, err = ParseCurrency("JPY")
	assert.Error(t, err)

	_, err = ParseCurrency("EURO")
	assert.Error(t, err)
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "1234.50 TRY", try(t, "1234.5").String())
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrNegativeAmount, ErrNegativeResult))
}
