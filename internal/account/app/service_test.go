package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahmetunal/TransferHub/internal/account/domain"
	"github.com/mahmetunal/TransferHub/internal/account/store"
	"github.com/mahmetunal/TransferHub/pkg/money"
)

type lifecycleStub struct {
	store.Repository

	created     *domain.Account
	getByIBAN   map[string]*domain.Account
	activated   []string
	deactivated []string
}

func (s *lifecycleStub) CreateAccount(_ context.Context, account *domain.Account) error {
	s.created = account
	return nil
}

func (s *lifecycleStub) GetAccountByIBAN(_ context.Context, iban string) (*domain.Account, error) {
	if account, ok := s.getByIBAN[iban]; ok {
		return account, nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *lifecycleStub) ActivateAccount(_ context.Context, iban string) error {
	s.activated = append(s.activated, iban)
	return nil
}

func (s *lifecycleStub) DeactivateAccount(_ context.Context, iban string) error {
	s.deactivated = append(s.deactivated, iban)
	return nil
}

func TestOpenAccount_GeneratesValidIBANAndZeroBalance(t *testing.T) {
	repo := &lifecycleStub{}
	svc := NewAccountService(repo)

	account, err := svc.OpenAccount(context.Background(), "Ada Lovelace", "TR", "try")
	require.NoError(t, err)
	require.NotNil(t, repo.created)

	_, err = money.ParseIBAN(account.IBAN)
	assert.NoError(t, err, "generated IBAN must carry a valid checksum")
	assert.Equal(t, "TRY", account.Currency)
	assert.True(t, account.Balance.IsZero())
	assert.True(t, account.IsActive)
}

func TestOpenAccount_RejectsUnsupportedCurrency(t *testing.T) {
	svc := NewAccountService(&lifecycleStub{})
	_, err := svc.OpenAccount(context.Background(), "Ada Lovelace", "TR", "JPY")
	assert.Error(t, err)
}

func TestGetAccount_NormalizesIBANBeforeLookup(t *testing.T) {
	stored := &domain.Account{IBAN: "DE89370400440532013000"}
	repo := &lifecycleStub{getByIBAN: map[string]*domain.Account{stored.IBAN: stored}}
	svc := NewAccountService(repo)

	account, err := svc.GetAccount(context.Background(), "de89 3704 0044 0532 0130 00")
	require.NoError(t, err)
	assert.Equal(t, stored.IBAN, account.IBAN)
}

func TestGetAccount_MalformedIBANFailsFast(t *testing.T) {
	svc := NewAccountService(&lifecycleStub{})
	_, err := svc.GetAccount(context.Background(), "not-an-iban")
	assert.Error(t, err)
}

func TestDeactivate_PassesNormalizedIBAN(t *testing.T) {
	repo := &lifecycleStub{}
	svc := NewAccountService(repo)

	require.NoError(t, svc.Deactivate(context.Background(), "gb82 west 1234 5698 7654 32"))
	assert.Equal(t, []string{"GB82WEST12345698765432"}, repo.deactivated)
}

func TestActivate_PassesNormalizedIBAN(t *testing.T) {
	repo := &lifecycleStub{}
	svc := NewAccountService(repo)

	require.NoError(t, svc.Activate(context.Background(), "gb82 west 1234 5698 7654 32"))
	assert.Equal(t, []string{"GB82WEST12345698765432"}, repo.activated)
}
