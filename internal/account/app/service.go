/**
 * @description
 * This file contains the account lifecycle business logic: opening accounts
 * with a generated IBAN, topping balances up outside the saga flow, and
 * read-side lookups for the HTTP API.
 *
 * @dependencies
 * - internal/account/domain: The Account aggregate.
 * - internal/account/store: Persistence.
 * - pkg/money: Currency validation and IBAN generation.
 */

package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mahmetunal/TransferHub/internal/account/domain"
	"github.com/mahmetunal/TransferHub/internal/account/store"
	"github.com/mahmetunal/TransferHub/pkg/money"
)

type AccountService struct {
	repo store.Repository
}

func NewAccountService(repo store.Repository) *AccountService {
	return &AccountService{repo: repo}
}

// OpenAccount creates an active account with a freshly generated IBAN in the
// requested country and currency.
func (s *AccountService) OpenAccount(ctx context.Context, ownerName, countryCode, currencyCode string) (*domain.Account, error) {
	currency, err := money.ParseCurrency(currencyCode)
	if err != nil {
		return nil, err
	}

	iban, err := money.GenerateIBAN(countryCode)
	if err != nil {
		return nil, err
	}

	account := domain.NewAccount(iban, ownerName, currency)
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// GetAccount looks up an account by IBAN, validating the IBAN first so a
// malformed value fails fast instead of producing an empty lookup.
func (s *AccountService) GetAccount(ctx context.Context, rawIBAN string) (*domain.Account, error) {
	iban, err := money.ParseIBAN(rawIBAN)
	if err != nil {
		return nil, err
	}
	return s.repo.GetAccountByIBAN(ctx, iban.String())
}

// ListAccounts returns a page of accounts.
func (s *AccountService) ListAccounts(ctx context.Context, limit, offset int) ([]domain.Account, error) {
	return s.repo.ListAccounts(ctx, limit, offset)
}

// TopUp credits funds onto an account directly, bypassing the transfer saga.
func (s *AccountService) TopUp(ctx context.Context, rawIBAN string, amount decimal.Decimal, currencyCode string) (*domain.Account, error) {
	iban, err := money.ParseIBAN(rawIBAN)
	if err != nil {
		return nil, err
	}
	currency, err := money.ParseCurrency(currencyCode)
	if err != nil {
		return nil, err
	}
	return s.repo.TopUpAccount(ctx, iban.String(), amount, currency.String())
}

// Activate re-enables a deactivated account.
func (s *AccountService) Activate(ctx context.Context, rawIBAN string) error {
	iban, err := money.ParseIBAN(rawIBAN)
	if err != nil {
		return err
	}
	return s.repo.ActivateAccount(ctx, iban.String())
}

// Deactivate disables an account. Held reservations stay intact so an
// in-flight saga can still release funds back.
func (s *AccountService) Deactivate(ctx context.Context, rawIBAN string) error {
	iban, err := money.ParseIBAN(rawIBAN)
	if err != nil {
		return err
	}
	return s.repo.DeactivateAccount(ctx, iban.String())
}
