/**
 * @description
 * This file defines the core domain models for the account-service: the
 * Account aggregate holding a ledger balance and the mutation rules the saga
 * commands exercise. Debits happen in two phases: Reserve moves funds out of
 * the available balance into a reservation, and the reservation is later
 * committed (funds leave for good) or released (funds return). Credits are
 * single-phase.
 *
 * @notes
 * - Balances use shopspring/decimal so arithmetic is exact; currency checks
 *   happen before any amount math.
 * - Domain methods mutate the aggregate in memory only. The store layer is
 *   responsible for persisting the result inside a transaction.
 *
 * @dependencies
 * - github.com/google/uuid: Account and reservation identifiers.
 * - github.com/shopspring/decimal: Exact balance arithmetic.
 */

package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mahmetunal/TransferHub/pkg/money"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCurrencyMismatch    = errors.New("account currency does not match requested currency")
	ErrAccountInactive     = errors.New("account is not active")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Account represents a ledger account. Maps to the `accounts` table.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	IBAN      string          `json:"iban"`
	OwnerName string          `json:"owner_name"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewAccount creates an active account with the generated IBAN and a zero
// balance in the given currency.
func NewAccount(iban money.IBAN, ownerName string, currency money.Currency) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:        uuid.New(),
		IBAN:      iban.String(),
		OwnerName: ownerName,
		Balance:   decimal.Zero,
		Currency:  string(currency),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (a *Account) guardMutation(amount decimal.Decimal, currency string) error {
	if !a.IsActive {
		return ErrAccountInactive
	}
	if a.Currency != currency {
		return ErrCurrencyMismatch
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Reserve debits the available balance and returns the reservation that holds
// the funds. The caller persists both the new balance and the reservation row
// in one transaction.
func (a *Account) Reserve(transferID uuid.UUID, amount decimal.Decimal, currency string) (*BalanceReservation, error) {
	if err := a.guardMutation(amount, currency); err != nil {
		return nil, err
	}
	if a.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = time.Now().UTC()
	return NewBalanceReservation(a.ID, transferID, amount, currency), nil
}

// Credit adds funds to the available balance.
func (a *Account) Credit(amount decimal.Decimal, currency string) error {
	if err := a.guardMutation(amount, currency); err != nil {
		return err
	}
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Refund returns previously reserved funds to the available balance. Unlike
// Credit it tolerates an inactive account: a release must always succeed once
// funds were taken, or money would vanish.
func (a *Account) Refund(amount decimal.Decimal) {
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = time.Now().UTC()
}
