/**
 * @description
 * This file contains the transfer-service business logic for the HTTP API:
 * validating and accepting new transfers (which starts the saga through the
 * outbox) and the read side used by clients to poll transfer progress.
 *
 * @dependencies
 * - internal/transfer/domain, internal/transfer/store: Aggregate and persistence.
 * - pkg/money: IBAN and currency validation.
 */

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mahmetunal/TransferHub/internal/transfer/domain"
	"github.com/mahmetunal/TransferHub/internal/transfer/store"
	"github.com/mahmetunal/TransferHub/pkg/money"
)

var ErrSameAccount = errors.New("source and destination accounts must differ")

type TransferService struct {
	repo store.Repository
}

func NewTransferService(repo store.Repository) *TransferService {
	return &TransferService{repo: repo}
}

// MaxReferenceLength bounds the caller-supplied transfer reference.
const MaxReferenceLength = 255

// InitiateTransfer validates the request, persists the pending transfer, and
// enqueues the saga-starting event in the same transaction. The caller gets
// the pending record back immediately; progress arrives asynchronously.
// reference is an optional free-text label carried on the transfer record.
func (s *TransferService) InitiateTransfer(ctx context.Context, sourceIBAN, destinationIBAN string, amount decimal.Decimal, currencyCode string, reference *string, initiatedBy string) (*domain.Transfer, error) {
	source, err := money.ParseIBAN(sourceIBAN)
	if err != nil {
		return nil, fmt.Errorf("source account: %w", err)
	}
	destination, err := money.ParseIBAN(destinationIBAN)
	if err != nil {
		return nil, fmt.Errorf("destination account: %w", err)
	}
	if source == destination {
		return nil, ErrSameAccount
	}
	currency, err := money.ParseCurrency(currencyCode)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	if reference != nil && len(*reference) > MaxReferenceLength {
		return nil, fmt.Errorf("reference must be at most %d characters", MaxReferenceLength)
	}

	transfer := domain.NewTransfer(source.String(), destination.String(), amount, currency.String(), reference, initiatedBy)
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	transfersInitiated.Inc()
	return transfer, nil
}

// GetTransfer returns one transfer by id.
func (s *TransferService) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// ListTransfers returns the caller's transfers with the given filters.
func (s *TransferService) ListTransfers(ctx context.Context, initiatedBy string, opts store.ListTransfersOptions) ([]domain.Transfer, error) {
	return s.repo.ListTransfers(ctx, initiatedBy, opts)
}
