package app

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahmetunal/TransferHub/internal/transfer/domain"
	"github.com/mahmetunal/TransferHub/internal/transfer/store"
)

type createStubRepo struct {
	store.Repository

	created *domain.Transfer
	err     error
}

func (s *createStubRepo) CreateTransfer(_ context.Context, transfer *domain.Transfer) error {
	s.created = transfer
	return s.err
}

const (
	validSource      = "TR330006100519786457841326"
	validDestination = "DE89370400440532013000"
)

func TestInitiateTransfer_CreatesPendingTransfer(t *testing.T) {
	repo := &createStubRepo{}
	svc := NewTransferService(repo)

	transfer, err := svc.InitiateTransfer(context.Background(),
		validSource, validDestination, decimal.RequireFromString("99.99"), "eur", nil, "user-3")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, transfer.Status)
	assert.Equal(t, "EUR", transfer.Currency)
	assert.Equal(t, validSource, transfer.SourceAccount)
	assert.Nil(t, transfer.Reference)
	assert.Same(t, transfer, repo.created)
}

func TestInitiateTransfer_KeepsReference(t *testing.T) {
	repo := &createStubRepo{}
	svc := NewTransferService(repo)

	reference := "invoice 2026-081"
	transfer, err := svc.InitiateTransfer(context.Background(),
		validSource, validDestination, decimal.NewFromInt(10), "EUR", &reference, "user-3")
	require.NoError(t, err)
	require.NotNil(t, transfer.Reference)
	assert.Equal(t, "invoice 2026-081", *transfer.Reference)
}

func TestInitiateTransfer_RejectsOverlongReference(t *testing.T) {
	svc := NewTransferService(&createStubRepo{})

	reference := strings.Repeat("r", MaxReferenceLength+1)
	_, err := svc.InitiateTransfer(context.Background(),
		validSource, validDestination, decimal.NewFromInt(10), "EUR", &reference, "user-3")
	assert.Error(t, err)
}

func TestInitiateTransfer_RejectsInvalidInput(t *testing.T) {
	svc := NewTransferService(&createStubRepo{})
	amount := decimal.NewFromInt(10)

	tests := []struct {
		name                string
		source, destination string
		amount              decimal.Decimal
		currency            string
	}{
		{"bad source iban", "XX00NOPE", validDestination, amount, "EUR"},
		{"bad destination iban", validSource, "nope", amount, "EUR"},
		{"same account", validSource, validSource, amount, "EUR"},
		{"unsupported currency", validSource, validDestination, amount, "XTS"},
		{"zero amount", validSource, validDestination, decimal.Zero, "EUR"},
		{"negative amount", validSource, validDestination, decimal.NewFromInt(-5), "EUR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.InitiateTransfer(context.Background(), tc.source, tc.destination, tc.amount, tc.currency, nil, "user-3")
			assert.Error(t, err)
		})
	}
}

func TestInitiateTransfer_SameAccountSentinel(t *testing.T) {
	svc := NewTransferService(&createStubRepo{})
	_, err := svc.InitiateTransfer(context.Background(),
		validSource, validSource, decimal.NewFromInt(1), "EUR", nil, "user-3")
	assert.ErrorIs(t, err, ErrSameAccount)
}
