/**
 * @description
 * This file defines the `Repository` interface for the transfer-service: the
 * transfer record CRUD used by the HTTP API, the saga event application used
 * by the orchestrator consumer, and the status transitions driven by the
 * terminal events. Like the account side, every write method is a single
 * database transaction combining inbox dedup, the mutation, and any outbox
 * enqueue.
 *
 * @dependencies
 * - internal/transfer/domain: Transfer aggregate.
 * - pkg/messaging: Saga events.
 * - pkg/outbox: Outbox message shape shared with the dispatcher.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mahmetunal/TransferHub/internal/transfer/domain"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/outbox"
)

// Inbox consumer identities. The saga and the status projection consume the
// same events on different queues, so they deduplicate independently.
const (
	SagaConsumer   = "transfer_saga"
	StatusConsumer = "transfer_status"
)

// ListTransfersOptions filters the transfer listing. Zero values mean
// "no filter" for that field.
type ListTransfersOptions struct {
	Status             string
	SourceAccount      string
	DestinationAccount string
	From               *time.Time
	To                 *time.Time
	Limit              int
	Offset             int
}

// SagaResult reports how a saga event landed.
type SagaResult struct {
	Duplicate bool
	Ignored   bool
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Transfer records
	CreateTransfer(ctx context.Context, transfer *domain.Transfer) error
	GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, initiatedBy string, opts ListTransfersOptions) ([]domain.Transfer, error)

	// Saga orchestration. messageID is the broker message id for inbox dedup.
	ProcessSagaEvent(ctx context.Context, messageID string, event messaging.Message) (*SagaResult, error)

	// Status projection driven by ledger events. Each returns the transfer
	// after the transition (nil when the message was a duplicate).
	MarkTransferProcessing(ctx context.Context, messageID string, transferID uuid.UUID) (*domain.Transfer, error)
	MarkTransferFailed(ctx context.Context, messageID string, transferID uuid.UUID, reason string) (*domain.Transfer, error)
	MarkTransferCompleted(ctx context.Context, messageID string, transferID uuid.UUID) (*domain.Transfer, error)
	MarkTransferCancelled(ctx context.Context, messageID string, transferID uuid.UUID, reason string) (*domain.Transfer, error)

	// Outbox relay
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]outbox.Message, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}
